// Package handlers implements the session tool set. Every tool is a
// catalog.Tool: the schema and the handler are declared side by side and
// registered together, so an unregistered name is a single lookup miss.
//
// Handlers only talk to storage through the catalog.Call's domain.Tx and
// never commit or roll back themselves. A domain failure is reported with
// domain.Fail; the executor rolls the whole unit of work back.
package handlers
