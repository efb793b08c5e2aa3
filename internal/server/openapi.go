package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

const bearerSchemeName = "bearerAuth"

// apiDocument describes the routes registered by newHandler. The document is
// validated before it is returned.
func apiDocument(ctx context.Context, withToken bool) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "llmpipe",
			Version: "v1",
		},
		Paths: openapi3.NewPaths(),
	}

	errorSchema := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema()).
		WithRequired([]string{"error"})

	health := openapi3.NewOperation()
	health.OperationID = "health"
	health.Summary = "Service liveness"
	health.Responses = openapi3.NewResponses(
		withJSON(http.StatusOK, "Service is up", openapi3.NewObjectSchema().
			WithProperty("status", openapi3.NewStringSchema()).
			WithProperty("service", openapi3.NewStringSchema())),
	)
	doc.AddOperation("/", http.MethodGet, health)

	backends := openapi3.NewOperation()
	backends.OperationID = "listBackends"
	backends.Summary = "Registered backends and whether credentials are configured"
	backendItem := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("images", openapi3.NewBoolSchema()).
		WithProperty("configured", openapi3.NewBoolSchema())
	backends.Responses = openapi3.NewResponses(
		withJSON(http.StatusOK, "Backend list", openapi3.NewObjectSchema().
			WithProperty("backends", openapi3.NewArraySchema().WithItems(backendItem)).
			WithProperty("default", openapi3.NewStringSchema())),
	)
	doc.AddOperation("/v1/backends", http.MethodGet, backends)

	describe := openapi3.NewOperation()
	describe.OperationID = "openAPI"
	describe.Summary = "This document"
	describe.Responses = openapi3.NewResponses(
		withJSON(http.StatusOK, "OpenAPI document", openapi3.NewObjectSchema().WithAnyAdditionalProperties()),
	)
	doc.AddOperation("/v1/openapi.json", http.MethodGet, describe)

	run := openapi3.NewOperation()
	run.OperationID = "runPipeline"
	run.Summary = "Run one pipeline invocation"
	run.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithRequired(true).
		WithJSONSchema(openapi3.NewObjectSchema().
			WithProperty("input", openapi3.NewObjectSchema().WithAnyAdditionalProperties()).
			WithProperty("config", openapi3.NewObjectSchema().WithAnyAdditionalProperties()))}
	validation := openapi3.NewObjectSchema().
		WithProperty("valid", openapi3.NewBoolSchema()).
		WithProperty("errors", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
	result := openapi3.NewObjectSchema().
		WithProperty("answer", openapi3.NewSchema()).
		WithProperty("usage", openapi3.NewObjectSchema().WithAnyAdditionalProperties()).
		WithProperty("model", openapi3.NewStringSchema()).
		WithProperty("template", openapi3.NewObjectSchema().WithAnyAdditionalProperties()).
		WithProperty("validation", validation).
		WithProperty("backend", openapi3.NewStringSchema()).
		WithProperty("attempts", openapi3.NewIntegerSchema())
	run.Responses = openapi3.NewResponses(
		withJSON(http.StatusOK, "Pipeline result", result),
		withJSON(http.StatusBadRequest, "Invalid request or config", errorSchema),
		withJSON(http.StatusUnprocessableEntity, "Backend lacks a required capability", errorSchema),
		withJSON(http.StatusBadGateway, "Backend request failed", errorSchema),
		withJSON(http.StatusServiceUnavailable, "Backend credentials missing or rejected", errorSchema),
		withJSON(http.StatusGatewayTimeout, "Run deadline exceeded", errorSchema),
	)
	doc.AddOperation("/v1/pipeline/run", http.MethodPost, run)

	if withToken {
		scheme := openapi3.NewSecurityScheme()
		scheme.Type = "http"
		scheme.Scheme = "bearer"
		doc.Components = &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerSchemeName: &openapi3.SecuritySchemeRef{Value: scheme},
			},
		}
		doc.Security = *openapi3.NewSecurityRequirements().
			With(openapi3.NewSecurityRequirement().Authenticate(bearerSchemeName))
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi document: %w", err)
	}
	return doc, nil
}

func withJSON(status int, description string, schema *openapi3.Schema) openapi3.NewResponsesOption {
	response := openapi3.NewResponse().WithDescription(description).WithJSONSchema(schema)
	return openapi3.WithStatus(status, &openapi3.ResponseRef{Value: response})
}

func handleOpenAPI(w http.ResponseWriter, r *http.Request, opts handlerOptions) {
	doc, err := apiDocument(r.Context(), opts.token != "")
	if err != nil {
		loggerFrom(r.Context(), opts.logger).Error("build openapi document", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to build API document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
