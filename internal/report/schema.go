package report

// Schema is the JSON Schema (Draft 2020-12) for the DRI report JSON
// output. It documents the structure returned by WriteJSON.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/unbound-force/dri/report.schema.json",
  "title": "DRI Evaluation Report",
  "description": "Output schema for dri compare --format=json",
  "type": "object",
  "required": ["version", "metadata", "results"],
  "properties": {
    "version": {
      "type": "string",
      "description": "Schema version (semver)"
    },
    "metadata": { "$ref": "#/$defs/Metadata" },
    "results": {
      "type": "array",
      "items": { "$ref": "#/$defs/SubjectResult" }
    }
  },
` + sharedDefs + `
}`

// BatchSchema is the JSON Schema (Draft 2020-12) for the batch report
// JSON output written by batch.WriteJSON.
const BatchSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/unbound-force/dri/batch-report.schema.json",
  "title": "DRI Batch Report",
  "description": "Output schema for dri batch --format=json",
  "type": "object",
  "required": ["run_id", "started", "results", "summary", "duration_ms"],
  "properties": {
    "run_id": {
      "type": "string",
      "description": "Unique id of the batch run (UUID)"
    },
    "started": {
      "type": "string",
      "description": "Start time (RFC 3339)"
    },
    "duration_ms": { "type": "integer", "minimum": 0 },
    "results": {
      "type": "array",
      "items": { "$ref": "#/$defs/SubjectResult" }
    },
    "summary": { "$ref": "#/$defs/BatchSummary" }
  },
` + sharedDefs + `
}`

const sharedDefs = `  "$defs": {
    "Metadata": {
      "type": "object",
      "required": ["engine_version", "lexicon_size", "warnings", "duration_ms"],
      "properties": {
        "engine_version": { "type": "string" },
        "lexicon_size": { "type": "integer", "minimum": 0 },
        "warnings": { "type": "array", "items": { "type": "string" } },
        "duration_ms": { "type": "integer", "minimum": 0 },
        "timestamp": {
          "type": "string",
          "description": "Run time (RFC 3339)"
        }
      }
    },
    "SubjectResult": {
      "type": "object",
      "required": ["id", "fingerprint", "context", "baseline", "parse", "comparison", "baseline_score", "warnings"],
      "properties": {
        "id": { "type": "string" },
        "fingerprint": {
          "type": "string",
          "description": "Stable id of the subject inputs (sr-<8 hex>)"
        },
        "context": { "$ref": "#/$defs/ContextSizeDecision" },
        "baseline": {
          "type": "object",
          "description": "Keyword matcher verdict per indicator id",
          "additionalProperties": { "$ref": "#/$defs/DetectionResult" }
        },
        "parse": { "$ref": "#/$defs/ParseResult" },
        "comparison": { "$ref": "#/$defs/ComparisonReport" },
        "baseline_score": { "$ref": "#/$defs/DRIScore" },
        "model_score": { "$ref": "#/$defs/DRIScore" },
        "baseline_truth": { "$ref": "#/$defs/GroundTruthCheck" },
        "model_truth": { "$ref": "#/$defs/GroundTruthCheck" },
        "warnings": { "type": "array", "items": { "type": "string" } },
        "error": { "type": "string" },
        "cancelled": { "type": "boolean" }
      }
    },
    "ContextSizeDecision": {
      "type": "object",
      "required": ["total_context_length", "threshold", "mode", "output_budget"],
      "properties": {
        "total_context_length": { "type": "integer", "minimum": 0 },
        "threshold": { "type": "integer", "minimum": 0 },
        "mode": {
          "type": "string",
          "description": "standard or large; empty for subjects that were never evaluated"
        },
        "output_budget": { "type": "integer", "minimum": 0 }
      }
    },
    "DetectionResult": {
      "type": "object",
      "required": ["indicator_id", "indicator_name", "detected", "match_count", "matched_keywords", "snippets"],
      "properties": {
        "indicator_id": { "type": "string" },
        "indicator_name": { "type": "string" },
        "detected": { "type": "boolean" },
        "match_count": { "type": "integer", "minimum": 0 },
        "matched_keywords": { "type": "array", "items": { "type": "string" } },
        "snippets": { "type": "array", "items": { "type": "string" } }
      }
    },
    "ParseResult": {
      "type": "object",
      "required": ["status", "method", "indicators", "warnings", "steps"],
      "properties": {
        "status": { "enum": ["parsed", "repaired", "failed"] },
        "method": { "enum": ["direct", "syntax_repair", "truncation_repair", "none"] },
        "summary": {
          "type": "object",
          "properties": {
            "indicators_detected": { "type": "integer" },
            "indicators_cleared": { "type": "integer" },
            "requires_review_count": { "type": "integer" },
            "analysis_notes": { "type": "string" }
          }
        },
        "indicators": {
          "type": "array",
          "items": { "$ref": "#/$defs/LLMIndicatorRecord" }
        },
        "warnings": { "type": "array", "items": { "type": "string" } },
        "steps": { "type": "array", "items": { "type": "string" } },
        "raw": { "type": "string" },
        "candidate": { "type": "string" },
        "error": { "type": "string" }
      }
    },
    "LLMIndicatorRecord": {
      "type": "object",
      "required": ["indicator_id", "indicator_name", "confidence", "reasoning", "evidence", "temporal_status", "requires_review"],
      "properties": {
        "indicator_id": { "type": "string" },
        "indicator_name": { "type": "string" },
        "confidence": { "enum": ["low", "medium", "high", "unknown"] },
        "reasoning": { "type": "string" },
        "evidence": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["source", "excerpt"],
            "properties": {
              "source": { "type": "string" },
              "record_id": { "type": "string" },
              "date": { "type": "string" },
              "excerpt": { "type": "string" }
            }
          }
        },
        "temporal_status": {
          "type": "object",
          "properties": {
            "type": { "type": "string" },
            "onset_date": { "type": "string" },
            "persistence_rule": { "type": "string" }
          }
        },
        "requires_review": { "type": "boolean" }
      }
    },
    "ComparisonReport": {
      "type": "object",
      "required": ["both", "only_a", "only_b", "entries", "agreement"],
      "properties": {
        "both": { "type": "array", "items": { "type": "string" } },
        "only_a": {
          "type": "array",
          "items": { "type": "string" },
          "description": "Indicators only the keyword matcher detected"
        },
        "only_b": {
          "type": "array",
          "items": { "type": "string" },
          "description": "Indicators only the model reported"
        },
        "entries": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["indicator_id", "indicator_name", "partition"],
            "properties": {
              "indicator_id": { "type": "string" },
              "indicator_name": { "type": "string" },
              "partition": { "enum": ["both", "only_a", "only_b"] },
              "baseline": { "$ref": "#/$defs/DetectionResult" },
              "model": { "$ref": "#/$defs/LLMIndicatorRecord" }
            }
          }
        },
        "agreement": { "type": "number", "minimum": 0, "maximum": 1 }
      }
    },
    "DRIScore": {
      "type": "object",
      "required": ["active_count", "total_count", "severity_band", "score"],
      "properties": {
        "active_count": { "type": "integer", "minimum": 0 },
        "total_count": { "type": "integer", "minimum": 0 },
        "severity_band": {
          "type": "string",
          "description": "Low, Medium, High or Very High; empty for subjects that were never evaluated"
        },
        "score": {
          "type": "number",
          "minimum": 0,
          "maximum": 1,
          "description": "active_count / total_count rounded to 4 decimal places"
        }
      }
    },
    "GroundTruthCheck": {
      "type": "object",
      "description": "One detection source checked against reviewer-confirmed indicator ids",
      "required": ["expected", "true_positives", "false_positives", "missed", "match"],
      "properties": {
        "expected": { "type": "array", "items": { "type": "string" } },
        "true_positives": { "type": "array", "items": { "type": "string" } },
        "false_positives": { "type": "array", "items": { "type": "string" } },
        "missed": { "type": "array", "items": { "type": "string" } },
        "match": { "type": "boolean" }
      }
    },
    "Accuracy": {
      "type": "object",
      "required": ["subjects", "matches", "true_positives", "false_positives", "missed", "precision", "false_positive_rate", "recall"],
      "properties": {
        "subjects": { "type": "integer", "minimum": 0 },
        "matches": { "type": "integer", "minimum": 0 },
        "true_positives": { "type": "integer", "minimum": 0 },
        "false_positives": { "type": "integer", "minimum": 0 },
        "missed": { "type": "integer", "minimum": 0 },
        "precision": { "type": "number", "minimum": 0, "maximum": 1 },
        "false_positive_rate": { "type": "number", "minimum": 0, "maximum": 1 },
        "recall": { "type": "number", "minimum": 0, "maximum": 1 }
      }
    },
    "BatchSummary": {
      "type": "object",
      "required": ["subjects", "parsed", "repaired", "failed", "cancelled", "baseline_bands", "model_bands", "mean_agreement", "worst_agreement"],
      "properties": {
        "subjects": { "type": "integer", "minimum": 0 },
        "parsed": { "type": "integer", "minimum": 0 },
        "repaired": { "type": "integer", "minimum": 0 },
        "failed": { "type": "integer", "minimum": 0 },
        "cancelled": { "type": "integer", "minimum": 0 },
        "baseline_bands": { "$ref": "#/$defs/BandCounts" },
        "model_bands": { "$ref": "#/$defs/BandCounts" },
        "mean_agreement": { "type": "number", "minimum": 0, "maximum": 1 },
        "baseline_accuracy": { "$ref": "#/$defs/Accuracy" },
        "model_accuracy": { "$ref": "#/$defs/Accuracy" },
        "worst_agreement": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "agreement", "only_a", "only_b"],
            "properties": {
              "id": { "type": "string" },
              "agreement": { "type": "number" },
              "only_a": { "type": "array", "items": { "type": "string" } },
              "only_b": { "type": "array", "items": { "type": "string" } }
            }
          }
        }
      }
    },
    "BandCounts": {
      "type": "object",
      "required": ["Low", "Medium", "High", "Very High"],
      "additionalProperties": { "type": "integer", "minimum": 0 }
    }
  }`
