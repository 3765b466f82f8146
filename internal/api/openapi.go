package api

// OpenAPI document served at /swagger.json.
const openAPISpec = `{
  "openapi": "3.0.0",
  "info": {
    "title": "Rentals Reservation Service API",
    "version": "1.0.0"
  },
  "paths": {
    "/health": {
      "get": {
        "summary": "Health check",
        "responses": {
          "200": { "description": "Service is healthy" }
        }
      }
    },
    "/api/availability": {
      "post": {
        "summary": "Check availability of a product or package for a date range",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": { "schema": { "$ref": "#/components/schemas/AvailabilityRequest" } }
          }
        },
        "responses": {
          "200": { "description": "Availability result" },
          "400": { "description": "Invalid request or date range", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/ErrorResponse" } } } }
        }
      }
    },
    "/api/holds": {
      "post": {
        "summary": "Create a soft hold for a session",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": { "schema": { "$ref": "#/components/schemas/CreateHoldRequest" } }
          }
        },
        "responses": {
          "201": { "description": "Hold created", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/Hold" } } } },
          "404": { "description": "Product not found" },
          "409": { "description": "Insufficient stock or inactive product", "content": { "application/json": { "schema": { "$ref": "#/components/schemas/ErrorResponse" } } } }
        }
      }
    },
    "/api/holds/package": {
      "post": {
        "summary": "Reserve every component of a package, all or nothing",
        "responses": {
          "201": { "description": "Holds created" },
          "409": { "description": "A component is short" }
        }
      }
    },
    "/api/holds/{id}": {
      "get": {
        "summary": "Get a hold",
        "parameters": [ { "name": "id", "in": "path", "required": true, "schema": { "type": "string", "format": "uuid" } } ],
        "responses": {
          "200": { "description": "Hold found" },
          "404": { "description": "Hold not found" }
        }
      }
    },
    "/api/holds/{id}/extend": {
      "post": {
        "summary": "Extend a pending soft hold",
        "parameters": [ { "name": "id", "in": "path", "required": true, "schema": { "type": "string", "format": "uuid" } } ],
        "responses": {
          "200": { "description": "Hold extended" },
          "409": { "description": "Hold is not a pending soft hold" }
        }
      }
    },
    "/api/sessions/{sessionId}/holds": {
      "get": { "summary": "List holds of a session", "responses": { "200": { "description": "Holds" } } }
    },
    "/api/sessions/{sessionId}/attach": {
      "post": { "summary": "Attach pending soft holds of a session to an order", "responses": { "200": { "description": "Affected count" } } }
    },
    "/api/sessions/{sessionId}/promote": {
      "post": { "summary": "Promote pending soft holds of a session to hard holds", "responses": { "200": { "description": "Affected count" } } }
    },
    "/api/sessions/{sessionId}/release": {
      "post": { "summary": "Release pending soft holds of a session", "responses": { "200": { "description": "Affected count" } } }
    },
    "/api/orders/{orderId}/holds": {
      "get": { "summary": "List holds of an order", "responses": { "200": { "description": "Holds" } } }
    },
    "/api/orders/{orderId}/promote": {
      "post": { "summary": "Promote attached soft holds of an order", "responses": { "200": { "description": "Affected count" } } }
    },
    "/api/orders/{orderId}/release": {
      "post": { "summary": "Release active holds of an order", "responses": { "200": { "description": "Affected count" } } }
    },
    "/api/orders/{orderId}/complete": {
      "post": { "summary": "Complete active hard holds of an order", "responses": { "200": { "description": "Affected count" } } }
    },
    "/api/admin/sweep": {
      "post": { "summary": "Release expired soft holds now", "responses": { "200": { "description": "Sweep statistics" } } }
    },
    "/api/admin/products/{productId}": {
      "put": { "summary": "Create or update a rentable product", "responses": { "200": { "description": "Stock item" } } }
    },
    "/api/admin/packages/{packageId}": {
      "put": { "summary": "Create or update a package", "responses": { "200": { "description": "Package" } } }
    }
  },
  "components": {
    "schemas": {
      "AvailabilityRequest": {
        "type": "object",
        "required": ["type", "id", "startDate", "endDate"],
        "properties": {
          "type": { "type": "string", "enum": ["product", "package"] },
          "id": { "type": "string", "format": "uuid" },
          "quantity": { "type": "integer" },
          "persons": { "type": "integer" },
          "startDate": { "type": "string", "format": "date" },
          "endDate": { "type": "string", "format": "date" },
          "sessionId": { "type": "string" },
          "optionalProductIds": { "type": "array", "items": { "type": "string", "format": "uuid" } }
        }
      },
      "CreateHoldRequest": {
        "type": "object",
        "required": ["productId", "sessionId", "quantity", "startDate", "endDate"],
        "properties": {
          "productId": { "type": "string", "format": "uuid" },
          "sessionId": { "type": "string" },
          "quantity": { "type": "integer", "minimum": 1 },
          "startDate": { "type": "string", "format": "date" },
          "endDate": { "type": "string", "format": "date" }
        }
      },
      "Hold": {
        "type": "object",
        "properties": {
          "id": { "type": "string", "format": "uuid" },
          "productId": { "type": "string", "format": "uuid" },
          "packageId": { "type": "string", "format": "uuid", "description": "Set on holds placed by a package reservation" },
          "sessionId": { "type": "string" },
          "orderId": { "type": "string", "format": "uuid" },
          "quantity": { "type": "integer" },
          "startDate": { "type": "string", "format": "date" },
          "endDate": { "type": "string", "format": "date" },
          "state": { "type": "string" },
          "holdType": { "type": "string", "enum": ["SOFT", "HARD"] },
          "status": { "type": "string" },
          "expiresAtUtc": { "type": "string", "format": "date-time" },
          "createdAtUtc": { "type": "string", "format": "date-time" }
        }
      },
      "ErrorResponse": {
        "type": "object",
        "properties": {
          "error": { "type": "string" },
          "message": { "type": "string" },
          "details": {},
          "availableQuantity": { "type": "integer" }
        }
      }
    }
  }
}`
