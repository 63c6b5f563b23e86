package config

// runConfigSchema is the JSON schema the raw run-configuration document is
// checked against before decoding. Schema violations are fatal at startup.
const runConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["token_url", "services", "tenants"],
  "properties": {
    "run_id": {"type": "string"},
    "token_url": {"type": "string", "minLength": 1},
    "audience": {"type": "string"},
    "services": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "tenants": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "request_timeout_seconds": {"type": "number", "exclusiveMinimum": 0},
    "ramp": {
      "type": "object",
      "properties": {
        "step_rps": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}},
        "step_duration_seconds": {"type": "integer", "minimum": 1},
        "search_share": {"type": "number", "minimum": 0, "maximum": 1},
        "cold_start_threshold_ms": {"type": "number", "minimum": 0}
      }
    },
    "scenarios": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "iterations", "concurrency"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "iterations": {"type": "integer", "minimum": 1},
          "concurrency": {"type": "integer", "minimum": 1},
          "delay_seconds": {"type": "number", "minimum": 0}
        }
      }
    },
    "pipeline": {
      "type": "object",
      "properties": {
        "iterations": {"type": "integer", "minimum": 0},
        "concurrency": {"type": "integer", "minimum": 1},
        "poll_interval_seconds": {"type": "number", "exclusiveMinimum": 0},
        "poll_deadline_seconds": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "scaling": {
      "type": "object",
      "properties": {
        "prometheus_url": {"type": "string"},
        "service": {"type": "string"},
        "metric": {"type": "string"},
        "event_window_seconds": {"type": "number", "exclusiveMinimum": 0},
        "min_poll_interval_seconds": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "sla": {
      "type": "object",
      "properties": {
        "end_to_end_p95_ms": {"type": "number"},
        "hybrid_p95_ms": {"type": "number"},
        "rerank_p95_ms": {"type": "number"},
        "cached_read_p95_ms": {"type": "number"},
        "cache_hit_rate_target": {"type": "number", "minimum": 0, "maximum": 1},
        "error_rate_ceiling": {"type": "number", "minimum": 0, "maximum": 1},
        "cold_start": {
          "type": "object",
          "properties": {
            "max_cold_start_ms": {"type": "number"},
            "acceptable_cold_start_rate": {"type": "number", "minimum": 0, "maximum": 1}
          }
        },
        "require_scale_out": {"type": "boolean"}
      }
    },
    "report": {
      "type": "object",
      "properties": {
        "path": {"type": "string"},
        "junit_path": {"type": "string"}
      }
    },
    "cost": {
      "type": "object",
      "properties": {
        "pushgateway_url": {"type": "string"},
        "job": {"type": "string"},
        "rows_path": {"type": "string"}
      }
    }
  }
}`
