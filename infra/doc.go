// Package infra contains the technical adapters of smartshift: storage
// backends, metrics sinks, the MQTT bridge, the event journal and the OSRM
// router. They depend only on the interfaces defined in the core packages.
package infra
