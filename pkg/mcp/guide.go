package mcp

// systemGuideText is served at pioreactor://system_guide. It is the
// operator-facing manual for agents driving the fleet through this bridge.
const systemGuideText = `# Pioreactor bridge guide

This server bridges MCP clients to a Pioreactor cluster's control API. Every
tool call forwards exactly one HTTP request to the leader; nothing is queued,
retried, or cached.

## Addressing

Operations target a (worker, job_name, experiment) triple. Names are
validated locally before any network call: 1-64 characters drawn from
letters, digits, hyphen, and underscore. Use the exact names from the
workers and experiments resources.

## Resources

- pioreactor://experiments - experiments known to the cluster
- pioreactor://workers - worker units (subject to the configured unit filter)
- pioreactor://job_schemas - settings, types, and inclusive ranges per job
- pioreactor://overview - all of the above in one fetch

Listings are fetched fresh on every read. When part of an aggregation fails,
the snapshot still carries whatever succeeded, plus a failure marker with a
RESOURCE_UNAVAILABLE code; an empty item list with no failure marker really
means "nothing there".

## Tools

- start_job: start a background job. Settings are optional and passed
  through to the job unvalidated; consult job_schemas for valid keys.
- stop_job: stop a running job. Stopping an already-stopped job is reported
  by the backend, not treated as a bridge error.
- update_job_settings: apply one or more settings to a running job. At
  least one setting is required.
- set_led_intensity: shortcut for channels A-D at 0-100 percent. Equivalent
  to update_job_settings on the led_intensity job with the channel name as
  the settings key.
- set_stirring_speed: shortcut for target_rpm at 0-2000. Equivalent to
  update_job_settings on the stirring job.

Shortcut ranges are enforced locally from the same table job_schemas serves.
Everything else is validated by the backend, and its verdict is returned in
the structured result.

## Errors

Tool results carry success, message, raw_status, raw_body, and a code:

- INVALID_ADDRESS, INVALID_PARAMETER: rejected locally, nothing dispatched
- BACKEND_UNREACHABLE, BACKEND_TIMEOUT: transport failure; a timed-out
  request may still have completed on the backend
- BACKEND_CLIENT_ERROR (4xx), BACKEND_SERVER_ERROR (5xx): backend verdicts

Failed calls also set isError with errorInfo{category, retryable}. Retry
only when retryable is true, and remember that start_job is not idempotent.`
