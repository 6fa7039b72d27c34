// Package docs holds the Swagger 2.0 description of the HTTP API served at
// /swagger/. It is maintained by hand alongside the swag annotations on the
// handlers; keep both in step when a route changes.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/ingest": {
            "post": {
                "description": "Fetches, normalizes and appends the current quotes of every provider",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Run ingestion now",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.IngestionRun"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/ingest/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Recent ingestion runs",
                "parameters": [
                    {"type": "integer", "description": "Maximum entries (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.IngestionRun"}}}
                }
            }
        },
        "/admin/rates/fetch": {
            "post": {
                "description": "Asks every provider for the rates of one past day and backfills them with an audit entry per stored record",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Fetch historical rates",
                "parameters": [
                    {"type": "string", "description": "Operator name", "name": "X-Actor", "in": "header", "required": true},
                    {"type": "string", "description": "Date (YYYY-MM-DD)", "name": "date", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.IngestionRun"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/rates/backfill": {
            "post": {
                "description": "Inserts a rate dated before the latest stored one and records an audit entry",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Backfill a historical rate",
                "parameters": [
                    {"type": "string", "description": "Operator name", "name": "X-Actor", "in": "header", "required": true},
                    {"description": "Rate to insert", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.BackfillRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.BackfillAudit"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/rates/backfills": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List backfills",
                "parameters": [
                    {"type": "string", "description": "Filter by asset", "name": "asset", "in": "query"},
                    {"type": "integer", "description": "Maximum entries (default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.BackfillAudit"}}}
                }
            }
        },
        "/assets": {
            "get": {
                "description": "Registered assets, pivot first, with statistics for stored series",
                "produces": ["application/json"],
                "tags": ["assets"],
                "summary": "List assets",
                "parameters": [
                    {"type": "string", "description": "Filter by class (fiat, precious_metal, crypto)", "name": "class", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/services.AssetInfo"}}}
                }
            }
        },
        "/convert": {
            "get": {
                "description": "Converts amount of from into to through the pivot, rounded half-up to the precision of to",
                "produces": ["application/json"],
                "tags": ["convert"],
                "summary": "Convert an amount",
                "parameters": [
                    {"type": "string", "description": "Source asset", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "Target asset", "name": "to", "in": "query", "required": true},
                    {"type": "string", "description": "Decimal amount", "name": "amount", "in": "query", "required": true},
                    {"type": "string", "description": "Date (YYYY-MM-DD) or latest", "name": "at", "in": "query"},
                    {"type": "string", "description": "Maximum rate age, e.g. 72h or 3d", "name": "max_staleness", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ConversionResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/convert/batch": {
            "post": {
                "description": "Converts every amount into one target asset at the same point in time and sums them",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["convert"],
                "summary": "Convert several amounts",
                "parameters": [
                    {"description": "Amounts to convert", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.BatchConvertRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.BatchConversionResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/rates": {
            "get": {
                "description": "Every asset expressed against a base, latest or as of a date. Assets without a rate are listed as missing.",
                "produces": ["application/json"],
                "tags": ["rates"],
                "summary": "Rate table",
                "parameters": [
                    {"type": "string", "description": "Base asset (default pivot)", "name": "base", "in": "query"},
                    {"type": "string", "description": "Date (YYYY-MM-DD), latest when omitted", "name": "date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.RateTable"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/rates/at": {
            "get": {
                "description": "Rate dated exactly on date, or with as_of the most recent one on or before it",
                "produces": ["application/json"],
                "tags": ["rates"],
                "summary": "Rate on a date",
                "parameters": [
                    {"type": "string", "description": "Asset code", "name": "asset", "in": "query", "required": true},
                    {"type": "string", "description": "Date (YYYY-MM-DD)", "name": "date", "in": "query", "required": true},
                    {"type": "boolean", "description": "Fall back to the closest earlier record", "name": "as_of", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PriceRecord"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/rates/history": {
            "get": {
                "description": "Stored rates of an asset dated within [from, to], oldest first",
                "produces": ["application/json"],
                "tags": ["rates"],
                "summary": "Rate history",
                "parameters": [
                    {"type": "string", "description": "Asset code", "name": "asset", "in": "query", "required": true},
                    {"type": "string", "description": "Start date (YYYY-MM-DD)", "name": "from", "in": "query", "required": true},
                    {"type": "string", "description": "End date (YYYY-MM-DD)", "name": "to", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.PriceRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/rates/latest": {
            "get": {
                "description": "Most recent stored rate of an asset, expressed in pivot units",
                "produces": ["application/json"],
                "tags": ["rates"],
                "summary": "Latest rate",
                "parameters": [
                    {"type": "string", "description": "Asset code", "name": "asset", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PriceRecord"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.BatchConvertRequest": {
            "type": "object",
            "properties": {
                "amounts": {"type": "array", "items": {"$ref": "#/definitions/models.BatchAmount"}},
                "at": {"type": "string"},
                "max_staleness": {"type": "string"},
                "to": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "field": {"type": "string"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "database": {"type": "string"},
                "series": {"type": "integer"},
                "service": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "models.BackfillAudit": {
            "type": "object",
            "properties": {
                "actor": {"type": "string"},
                "asset": {"type": "string"},
                "created_at": {"type": "string"},
                "date": {"type": "string"},
                "id": {"type": "string"},
                "rate": {"type": "number"},
                "reason": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "models.BatchAmount": {
            "type": "object",
            "properties": {
                "amount": {"type": "number"},
                "asset": {"type": "string"}
            }
        },
        "models.ConversionResult": {
            "type": "object",
            "properties": {
                "amount": {"type": "number"},
                "from": {"type": "string"},
                "rate_date_from": {"type": "string"},
                "rate_date_to": {"type": "string"},
                "rate_from": {"type": "number"},
                "rate_to": {"type": "number"},
                "result": {"type": "number"},
                "to": {"type": "string"}
            }
        },
        "models.IngestionRun": {
            "type": "object",
            "properties": {
                "appended": {"type": "integer"},
                "error": {"type": "string"},
                "failed": {"type": "integer"},
                "finished_at": {"type": "string"},
                "id": {"type": "string"},
                "skipped": {"type": "integer"},
                "started_at": {"type": "string"},
                "status": {"type": "string"},
                "trigger": {"type": "string"}
            }
        },
        "models.PriceRecord": {
            "type": "object",
            "properties": {
                "asset": {"type": "string"},
                "date": {"type": "string"},
                "rate": {"type": "number"},
                "source": {"type": "string"}
            }
        },
        "repositories.SeriesStats": {
            "type": "object",
            "properties": {
                "asset": {"type": "string"},
                "count": {"type": "integer"},
                "first": {"type": "string"},
                "index_entries": {"type": "integer"},
                "last": {"type": "string"},
                "size_bytes": {"type": "integer"}
            }
        },
        "services.AssetInfo": {
            "type": "object",
            "properties": {
                "class": {"type": "string"},
                "code": {"type": "string"},
                "name": {"type": "string"},
                "pivot": {"type": "boolean"},
                "precision": {"type": "integer"},
                "series": {"$ref": "#/definitions/repositories.SeriesStats"}
            }
        },
        "services.BackfillRequest": {
            "type": "object",
            "properties": {
                "asset": {"type": "string"},
                "date": {"type": "string"},
                "rate": {"type": "number"},
                "reason": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "services.BatchConversionResult": {
            "type": "object",
            "properties": {
                "results": {"type": "array", "items": {"$ref": "#/definitions/models.ConversionResult"}},
                "to": {"type": "string"},
                "total": {"type": "number"}
            }
        },
        "services.CrossRate": {
            "type": "object",
            "properties": {
                "asset": {"type": "string"},
                "rate": {"type": "number"},
                "rate_date": {"type": "string"}
            }
        },
        "services.RateTable": {
            "type": "object",
            "properties": {
                "base": {"type": "string"},
                "date": {"type": "string"},
                "missing": {"type": "array", "items": {"type": "string"}},
                "rates": {"type": "array", "items": {"$ref": "#/definitions/services.CrossRate"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Price Store API",
	Description:      "Historical pivot-relative rates for fiat, precious metals and crypto, with conversion between any two assets.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
