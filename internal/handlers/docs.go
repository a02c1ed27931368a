package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpecPath is where the API description is served.
const OpenAPISpecPath = "/api/docs/openapi.json"

func queryParam(name, description, typ string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": typ},
	}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func listSchema(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data":  map[string]interface{}{"type": "array", "items": items},
			"count": map[string]string{"type": "integer"},
		},
	}
}

var errorSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"error":   map[string]string{"type": "string"},
		"message": map[string]string{"type": "string"},
		"code":    map[string]string{"type": "integer"},
	},
}

var pointSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"database": map[string]string{"type": "string"},
		"series":   map[string]string{"type": "string"},
		"time":     map[string]string{"type": "string", "format": "date-time"},
		"fields":   map[string]interface{}{"type": "object", "additionalProperties": true},
		"tags":     map[string]interface{}{"type": "object", "additionalProperties": map[string]string{"type": "string"}},
	},
}

var summarySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"database":    map[string]string{"type": "string"},
		"series":      map[string]string{"type": "string"},
		"point_count": map[string]string{"type": "integer"},
		"fields": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]string{"type": "string"},
					"count": map[string]string{"type": "integer"},
					"min":   map[string]interface{}{"type": "number", "nullable": true},
					"max":   map[string]interface{}{"type": "number", "nullable": true},
					"avg":   map[string]interface{}{"type": "number", "nullable": true},
				},
			},
		},
	},
}

var municipalitySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id":         map[string]string{"type": "string"},
		"name":       map[string]string{"type": "string"},
		"capital":    map[string]string{"type": "string"},
		"population": map[string]interface{}{"type": "integer", "nullable": true},
		"altitude":   map[string]interface{}{"type": "number", "nullable": true},
		"latitude":   map[string]interface{}{"type": "number", "nullable": true},
		"longitude":  map[string]interface{}{"type": "number", "nullable": true},
		"region":     map[string]string{"type": "string"},
		"updated_at": map[string]string{"type": "string", "format": "date-time"},
	},
}

var taskRunSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"id":          map[string]string{"type": "string"},
		"task":        map[string]string{"type": "string"},
		"measurement": map[string]string{"type": "string"},
		"field":       map[string]string{"type": "string"},
		"success":     map[string]string{"type": "boolean"},
		"started_at":  map[string]string{"type": "string", "format": "date-time"},
		"finished_at": map[string]string{"type": "string", "format": "date-time"},
		"error":       map[string]string{"type": "string"},
	},
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the ClimaCan read API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	window := []map[string]interface{}{
		queryParam("from", "Start of window (RFC3339 or YYYY-MM-DD)", "string"),
		queryParam("to", "End of window (RFC3339 or YYYY-MM-DD)", "string"),
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "ClimaCan API",
			"description": "Canary Islands weather series ingested from AEMET and Grafcan",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/series": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Query a series",
					"description": "Points of one series, newest first, with pagination",
					"parameters": append([]map[string]interface{}{
						queryParam("database", "Series database, e.g. a municipality or grafcan", "string"),
						queryParam("series", "Series name, e.g. temperature", "string"),
						queryParam("page", "Page number (default: 1)", "integer"),
						queryParam("limit", "Points per page (default: 100, max: 1000)", "integer"),
					}, window...),
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"data":        map[string]interface{}{"type": "array", "items": pointSchema},
								"total":       map[string]string{"type": "integer"},
								"page":        map[string]string{"type": "integer"},
								"limit":       map[string]string{"type": "integer"},
								"total_pages": map[string]string{"type": "integer"},
							},
						}),
						"400": jsonResponse("Missing database or series", errorSchema),
					},
				},
			},
			"/api/series/list": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "List series",
					"parameters": []map[string]interface{}{queryParam("database", "Restrict to one database", "string")},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", listSchema(map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"database":    map[string]string{"type": "string"},
								"series":      map[string]string{"type": "string"},
								"point_count": map[string]string{"type": "integer"},
								"first_time":  map[string]string{"type": "string", "format": "date-time"},
								"last_time":   map[string]string{"type": "string", "format": "date-time"},
							},
						})),
					},
				},
			},
			"/api/series/summary": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Summarize series",
					"description": "Min, max and average of every numeric field. Without series, every series of the database is summarized.",
					"parameters": append([]map[string]interface{}{
						queryParam("database", "Series database", "string"),
						queryParam("series", "Series name", "string"),
					}, window...),
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", summarySchema),
						"404": jsonResponse("No point in the window", errorSchema),
					},
				},
			},
			"/api/municipalities": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List Canary municipalities",
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", listSchema(municipalitySchema)),
					},
				},
			},
			"/api/municipalities/{id}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Get a municipality by INE code",
					"parameters": []map[string]interface{}{
						{
							"name":     "id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "string"},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", municipalitySchema),
						"404": jsonResponse("Unknown municipality", errorSchema),
					},
				},
			},
			"/api/tasks": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Task runs",
					"description": "Recent ingestion task runs, newest first",
					"parameters": []map[string]interface{}{
						queryParam("task", "Restrict to one task", "string"),
						queryParam("limit", "Runs to return (default: 20)", "integer"),
						queryParam("latest", "Only the latest run of every task", "boolean"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Successful response", listSchema(taskRunSchema)),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check the API and its series store",
					"responses": map[string]interface{}{
						"200": jsonResponse("API is healthy", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"status": map[string]string{"type": "string"},
							},
						}),
						"503": map[string]interface{}{"description": "Series store unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
