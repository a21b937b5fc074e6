// Edge Processor - windowed temperature queries with periodic snapshot upload
//
// Subscribes to sensor readings over MQTT (and optionally Kafka), keeps a
// bounded window per sensor, evaluates ranking queries on every poll tick and
// uploads a snapshot of the window means once per upload interval.
//
// @title           Edge Temperature API
// @version         1.0
// @description     Read-only view of the edge processor's windowed sensor state.
//
// @host            localhost:8080
// @BasePath        /
//
// @schemes         http
package main

import (
	"os"

	_ "github.com/cisco/edge-temperature-pipeline/docs"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
