// Package docs holds the swagger document served under /swagger/.
// Regenerate with: swag init -g cmd/guide/main.go
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
        "/api/v1/guide.Start": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Start a guide session",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Stop": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Stop the guide session",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.State": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Get guide session state",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.UpdateLocation": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Report a location fix",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.LocationError": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Report a location failure",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.RestartLocation": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Restart location tracking",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Select": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Open an attraction card",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Dismiss": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Close the attraction card",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Play": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Play narration",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Pause": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Pause narration",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Resume": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Resume narration",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.Restart": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Restart narration",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.StopAudio": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Stop narration",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/guide.SetAudioGuide": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "guide"
                ],
                "summary": "Toggle the audio guide",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/route.List": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "route"
                ],
                "summary": "List routes",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/route.Get": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "route"
                ],
                "summary": "Get a route",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/route.Attractions": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "route"
                ],
                "summary": "Route attractions as GeoJSON",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/route.Sync": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "route"
                ],
                "summary": "Sync the offline route cache",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        },
        "/api/v1/server.Info": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "server"
                ],
                "summary": "Server information",
                "parameters": [
                    {
                        "description": "JSON-RPC request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Request"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/jsonrpc.Response"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "jsonrpc.Request": {
            "type": "object",
            "properties": {
                "jsonrpc": {
                    "type": "string",
                    "example": "2.0"
                },
                "method": {
                    "type": "string"
                },
                "params": {
                    "type": "object"
                },
                "id": {}
            }
        },
        "jsonrpc.Error": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "integer"
                },
                "message": {
                    "type": "string"
                },
                "data": {}
            }
        },
        "jsonrpc.Response": {
            "type": "object",
            "properties": {
                "jsonrpc": {
                    "type": "string",
                    "example": "2.0"
                },
                "result": {},
                "error": {
                    "$ref": "#/definitions/jsonrpc.Error"
                },
                "id": {}
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
	Title:            "Tour Guide API",
	Description:      "JSON-RPC API for the proximity audio guide.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
