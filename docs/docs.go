// Package docs registers the OpenAPI document served under /swagger/*.
// It follows the layout swag emits; keep the paths in step with the annotations
// in internal/http/handler/routes.go, or regenerate with
// `swag init -g cmd/api/main.go -o docs` from the module root.
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
        "/": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Liveness text",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "summary": "Record store health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/landlords": {
            "get": {
                "produces": ["application/json"],
                "summary": "List all records of an entity type",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.listResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/organizations": {
            "get": {
                "produces": ["application/json"],
                "summary": "List all records of an entity type",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.listResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/contact": {
            "get": {
                "produces": ["application/json"],
                "summary": "List all records of an entity type",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.listResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/landlord/register": {
            "post": {
                "consumes": ["multipart/form-data", "application/x-www-form-urlencoded", "application/json"],
                "produces": ["application/json"],
                "summary": "Submit a registration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.recordResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/organization/register": {
            "post": {
                "consumes": ["multipart/form-data", "application/x-www-form-urlencoded", "application/json"],
                "produces": ["application/json"],
                "summary": "Submit a registration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.recordResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/contact/create": {
            "post": {
                "consumes": ["multipart/form-data", "application/x-www-form-urlencoded", "application/json"],
                "produces": ["application/json"],
                "summary": "Submit a registration",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.recordResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/api/upload": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "summary": "Upload a single file",
                "parameters": [
                    {"type": "file", "description": "file to store", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.uploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/uploads/{filename}": {
            "get": {
                "produces": ["application/octet-stream"],
                "summary": "Download a stored upload",
                "parameters": [
                    {"type": "string", "description": "generated file name", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        }
    },
    "definitions": {
        "handler.errorPayload": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "missing": {"type": "array", "items": {"type": "string"}},
                "request_id": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "handler.listResponse": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/model.Record"}},
                "success": {"type": "boolean"}
            }
        },
        "handler.recordResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/model.Record"},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "handler.uploadResponse": {
            "type": "object",
            "properties": {
                "filePath": {"type": "string"},
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "model.Record": {
            "type": "object",
            "additionalProperties": true,
            "properties": {
                "_id": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"}
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
	Title:            "PoleGrid Services API",
	Description:      "Registration intake for landlords, organizations and contact messages.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
