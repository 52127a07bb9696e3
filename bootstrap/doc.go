// Package bootstrap wires the application together: configuration, logging,
// storage, model registry and the pipeline orchestrator.
//
// Initialization order matters: pre-flight directory checks run before
// config, storage before engines, engines before the orchestrator. Each
// Init* function fails loudly with remediation hints rather than limping
// along with a half-built component.
package bootstrap
