// Command docpipe turns scanned or plain-text documents into validated,
// database-ready records.
//
// The CLI runs the pipeline in blocking mode (`run`, `resume`), serves the
// event-driven HTTP API (`serve`), lists the run ledger (`runs`), probes the
// environment (`check`), and manages configuration (`config`). Configuration
// is loaded once per invocation; a .env file in the working directory is read
// first so credentials can live outside the TOML file.
package main
