// sensorhubd drives an LSM6DSM sensor hub and publishes its events.
package main

import "github.com/relabs-tech/sensorhub/internal/cmd"

func main() {
	cmd.Execute()
}
