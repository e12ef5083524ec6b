// Package docs registers the OpenAPI document served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/r/{slug}": {
            "get": {
                "description": "Redirects to the destination of the link and records the click in the background.",
                "tags": ["redirect"],
                "summary": "Follow a tracking link",
                "parameters": [
                    {"type": "string", "description": "Link slug", "name": "slug", "in": "path", "required": true}
                ],
                "responses": {
                    "302": {"description": "Found"},
                    "404": {"description": "HTML page", "schema": {"type": "string"}},
                    "429": {"description": "Too Many Requests", "schema": {"type": "string"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness and datastore check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.HealthResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Process and analytics queue counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.MetricsResponse"}}
                }
            }
        },
        "/api/links/{slug}/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Platform, device and country breakdowns plus the ten most recent clicks. The link must belong to the caller.",
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Click statistics for a link",
                "parameters": [
                    {"type": "string", "description": "Link slug", "name": "slug", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.LinkStats"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "version": {"type": "string"},
                "database_status": {"type": "string"},
                "uptime": {"type": "string"}
            }
        },
        "http.MetricsResponse": {
            "type": "object",
            "properties": {
                "uptime_seconds": {"type": "number"},
                "timestamp": {"type": "string"},
                "version": {"type": "string"},
                "analytics": {"$ref": "#/definitions/analytics.Stats"}
            }
        },
        "http.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "analytics.Stats": {
            "type": "object",
            "properties": {
                "started": {"type": "boolean"},
                "queue_length": {"type": "integer"},
                "queue_capacity": {"type": "integer"},
                "worker_count": {"type": "integer"},
                "retry_attempts": {"type": "integer"},
                "submitted": {"type": "integer"},
                "dropped": {"type": "integer"},
                "recorded": {"type": "integer"},
                "failed": {"type": "integer"}
            }
        },
        "service.Breakdown": {
            "type": "object",
            "properties": {
                "label": {"type": "string"},
                "count": {"type": "integer"},
                "percentage": {"type": "number"}
            }
        },
        "service.RecentClick": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "timestamp": {"type": "string"},
                "platform": {"type": "string"},
                "device": {"type": "string"},
                "browser": {"type": "string"},
                "os": {"type": "string"},
                "country": {"type": "string"},
                "referrer": {"type": "string"}
            }
        },
        "service.LinkStats": {
            "type": "object",
            "properties": {
                "link_id": {"type": "string"},
                "slug": {"type": "string"},
                "name": {"type": "string"},
                "destination_url": {"type": "string"},
                "total_clicks": {"type": "integer"},
                "unique_clicks": {"type": "integer"},
                "desktop_clicks": {"type": "integer"},
                "mobile_clicks": {"type": "integer"},
                "unique_countries": {"type": "integer"},
                "platforms": {"type": "array", "items": {"$ref": "#/definitions/service.Breakdown"}},
                "devices": {"type": "array", "items": {"$ref": "#/definitions/service.Breakdown"}},
                "countries": {"type": "array", "items": {"$ref": "#/definitions/service.Breakdown"}},
                "recent_clicks": {"type": "array", "items": {"$ref": "#/definitions/service.RecentClick"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT Authorization header. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Clixy Redirect API",
	Description:      "Tracking link redirects with background click capture and per-link statistics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
