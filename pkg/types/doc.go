/*
Package types defines the core data structures used throughout eznas.

This package contains the declarative stack document (StackConfig) that
users edit, the state records the orchestrator persists between runs, and
the value types exchanged between the converge pipeline's components.

# Core Types

Stack document:
  - StackConfig: the full user-declared desired state
  - PathConfig: pool/scratch/appdata host roots
  - ServicesConfig: per-service enable/port/proxy blocks
  - TraefikConfig: optional reverse proxy in front of the stack
  - DownloadPolicy, MediaPolicy, QualityConfig: behavior knobs

Converge results:
  - StageEvent: one entry in a run's ordered event stream
  - RunRecord: persisted record of a converge run (bounded log)
  - Outcome: result of one service client's ensure pass
  - ValidationResult: named environment checks with remediation text
  - RenderResult: artifact paths produced by a render pass

State sections:
  - AuthState, AuthUser: the persisted account section

# Design Patterns

Enumerations use typed string constants (StageStatus). Failed ensure
passes are Outcome values rather than errors so the scheduler can keep
walking the dependency graph and skip only the failed service's
descendants.

All types serialize to JSON for the state store; the stack document also
carries YAML tags for the user-facing file.
*/
package types
