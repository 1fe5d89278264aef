package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "File Registry API",
        "description": "Content-addressed file registry, tagging and attachments for scan artifacts",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Files", "description": "Lookup and ingestion of scanned files"},
        {"name": "Tags", "description": "Labels on file occurrences"},
        {"name": "Attachments", "description": "Auxiliary artifacts stored next to a file"}
    ],
    "paths": {
        "/files": {
            "get": {
                "tags": ["Files"],
                "summary": "Search files by name or hash",
                "parameters": [
                    {"name": "name", "in": "query", "type": "string", "description": "Substring of the file name"},
                    {"name": "hash", "in": "query", "type": "string", "description": "md5, sha1 or sha256; exclusive with name"},
                    {"name": "tags", "in": "query", "type": "string", "description": "Comma separated, every tag required"},
                    {"name": "offset", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid query or unsupported hash", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Files"],
                "summary": "Register a file seen in a scan",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "scanId", "in": "query", "type": "string", "required": true},
                    {"name": "file", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{sha256}": {
            "get": {
                "tags": ["Files"],
                "summary": "Get a file with its occurrences, or its content with alt=media",
                "produces": ["application/json", "application/octet-stream"],
                "parameters": [
                    {"name": "sha256", "in": "path", "type": "string", "required": true},
                    {"name": "offset", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "alt", "in": "query", "type": "string", "enum": ["media"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{sha256}/tags/{tagId}": {
            "put": {
                "tags": ["Tags"],
                "summary": "Tag every occurrence of a file",
                "parameters": [
                    {"name": "sha256", "in": "path", "type": "string", "required": true},
                    {"name": "tagId", "in": "path", "type": "integer", "required": true}
                ],
                "responses": {
                    "204": {"description": "Tagged"},
                    "404": {"description": "File or tag not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Tags"],
                "summary": "Remove a tag from every occurrence of a file",
                "parameters": [
                    {"name": "sha256", "in": "path", "type": "string", "required": true},
                    {"name": "tagId", "in": "path", "type": "integer", "required": true}
                ],
                "responses": {
                    "204": {"description": "Untagged"},
                    "404": {"description": "File or tag not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/occurrences/{id}/tags/{tagId}": {
            "put": {
                "tags": ["Tags"],
                "summary": "Tag a single occurrence",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "tagId", "in": "path", "type": "integer", "required": true}
                ],
                "responses": {
                    "204": {"description": "Tagged"},
                    "404": {"description": "Occurrence or tag not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Tags"],
                "summary": "Remove a tag from a single occurrence",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "tagId", "in": "path", "type": "integer", "required": true}
                ],
                "responses": {
                    "204": {"description": "Untagged"},
                    "404": {"description": "Occurrence or tag not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/tags": {
            "get": {
                "tags": ["Tags"],
                "summary": "List tags",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Tags"],
                "summary": "Create a tag",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTagRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{sha256}/attachments": {
            "get": {
                "tags": ["Attachments"],
                "summary": "List attachments of a file",
                "parameters": [
                    {"name": "sha256", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Attachments"],
                "summary": "Attach files to a file",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "sha256", "in": "path", "type": "string", "required": true},
                    {"name": "files", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/files/{sha256}/attachments/{filename}": {
            "delete": {
                "tags": ["Attachments"],
                "summary": "Delete an attachment",
                "parameters": [
                    {"name": "sha256", "in": "path", "type": "string", "required": true},
                    {"name": "filename", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Names actually removed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateTagRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "text": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "offset": {"type": "integer"},
                "limit": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
