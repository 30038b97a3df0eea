package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves a small Swagger UI page and the OpenAPI document
// describing the evaluation API.
//   - GET /swagger/index.html
//   - GET /swagger/doc.json
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>progeval - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "progeval", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Reviewer login (password or keycloak mode)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string","enum":["password","keycloak"]},"email":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access and refresh tokens" }, "401": { "description": "invalid credentials" }, "503": { "description": "login disabled" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Rotate a refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new token pair" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the access token and refresh session", "parameters": [{"name":"all","in":"query","schema":{"type":"boolean"}}], "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" }, "401": { "description": "invalid refresh (all=true)" } } }
    },
    "/api/me": {
      "get": { "summary": "Current reviewer", "security": [{"bearer": []}], "responses": { "200": { "description": "reviewer" }, "401": { "description": "unauthenticated" } } }
    },
    "/api/programs": {
      "get": { "summary": "List academic programs", "responses": { "200": { "description": "programs" } } },
      "post": { "summary": "Create or update a program", "security": [{"bearer": []}], "responses": { "200": { "description": "saved" }, "400": { "description": "missing fields" } } },
      "delete": { "summary": "Delete a program by id", "security": [{"bearer": []}], "responses": { "200": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/cmo": {
      "get": { "summary": "List CMOs with their programs", "responses": { "200": { "description": "CMOs" } } },
      "post": { "summary": "Create or update a CMO", "security": [{"bearer": []}], "responses": { "200": { "description": "saved" }, "400": { "description": "missing fields" } } },
      "delete": { "summary": "Delete a CMO and its checklist", "security": [{"bearer": []}], "responses": { "200": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/cmo/programs": {
      "post": { "summary": "Programs associated with CMOs", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"cmo_ids":{"type":"array","items":{"type":"string"}}}}}}}, "responses": { "200": { "description": "programs" }, "400": { "description": "cmo_ids missing" } } }
    },
    "/api/programs/cmos": {
      "post": { "summary": "CMOs associated with programs", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"program_ids":{"type":"array","items":{"type":"string"}}}}}}}, "responses": { "200": { "description": "CMOs" }, "400": { "description": "program_ids missing" } } }
    },
    "/api/intake/selection": {
      "post": { "summary": "Reconcile CMO and program selections", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"selectedCMOs":{"type":"array","items":{"type":"string"}},"selectedPrograms":{"type":"array","items":{"type":"string"}},"changed":{"type":"string","enum":["cmo","program","apply"]}}}}}}, "responses": { "200": { "description": "selection and suggested programs" } } }
    },
    "/api/intake/proceed": {
      "post": { "summary": "Validate the intake form and save its record", "responses": { "201": { "description": "created with refNo" }, "200": { "description": "updated" }, "400": { "description": "validation message" } } }
    },
    "/api/evaluation": {
      "get": { "summary": "Record by refNo, or all records for reviewers", "parameters": [{"name":"refNo","in":"query","schema":{"type":"string"}}], "responses": { "200": { "description": "record(s)" }, "404": { "description": "not found" } } },
      "post": { "summary": "Create or update a record by refNo", "responses": { "201": { "description": "created" }, "200": { "description": "updated" }, "400": { "description": "missing fields" } } }
    },
    "/api/evaluation/search": {
      "get": { "summary": "Search records", "security": [{"bearer": []}], "parameters": [{"name":"q","in":"query","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "up to 50 records" } } }
    },
    "/api/evaluation/responses": {
      "get": { "summary": "Responses keyed by requirement id", "parameters": [{"name":"refNo","in":"query","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "response map" } } },
      "post": { "summary": "Replace all responses and broadcast", "responses": { "200": { "description": "saved" }, "408": { "description": "database timeout" } } }
    },
    "/api/evaluation/checklist": {
      "get": { "summary": "Compiled checklist for a record", "parameters": [{"name":"refNo","in":"query","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "merged sections" }, "404": { "description": "record not found" } } }
    },
    "/api/checklist": {
      "post": { "summary": "Compile a checklist for CMO ids", "responses": { "200": { "description": "merged sections" } } }
    },
    "/api/evaluation/submit": {
      "post": { "summary": "Save, broadcast and archive a snapshot", "responses": { "200": { "description": "receipt" } } }
    },
    "/api/evaluation/submissions": {
      "get": { "summary": "Submission receipts with download URLs", "parameters": [{"name":"refNo","in":"query","required":true,"schema":{"type":"string"}}], "responses": { "200": { "description": "receipts" } } }
    },
    "/api/evaluation/live": {
      "get": { "summary": "Websocket stream of response updates", "parameters": [{"name":"refNo","in":"query","required":true,"schema":{"type":"string"}}], "responses": { "101": { "description": "switching protocols" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
