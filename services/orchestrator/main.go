// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianCharter/pkg/logging"
	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/consistency"
	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/evaluator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/gate"
	"github.com/AleutianAI/AleutianCharter/services/protocol/orchestrator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
	"github.com/AleutianAI/AleutianCharter/services/protocol/storage"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "charter-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("charter-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func openRepository() (storage.Repository, error) {
	dbPath := os.Getenv("CHARTER_DB_PATH")
	if dbPath == "" {
		slog.Warn("CHARTER_DB_PATH not set, sessions will not survive restarts")
		return storage.NewMemoryRepository(), nil
	}
	cfg := storage.DefaultBadgerConfig(dbPath)
	cfg.Logger = slog.Default()
	return storage.OpenBadger(cfg)
}

func main() {
	port := os.Getenv("CHARTER_PORT")
	if port == "" {
		port = "12230"
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("CHARTER_LOG_LEVEL")),
		LogDir:  os.Getenv("CHARTER_LOG_DIR"),
		Service: "charter-service",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	repo, err := openRepository()
	if err != nil {
		log.Fatalf("failed to open session repository: %v", err)
	}
	defer repo.Close()

	log.Println("Configuring the LLM client")
	client, err := llm.NewClientFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize LLM client: %v", err)
	}

	judge, err := evaluator.NewLLMJudge(client, evaluator.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to create evaluator: %v", err)
	}
	engine, err := conversation.NewEngine(judge)
	if err != nil {
		log.Fatalf("failed to create conversation engine: %v", err)
	}
	agent, err := stages.NewAgent(engine)
	if err != nil {
		log.Fatalf("failed to create stage agent: %v", err)
	}
	orch, err := orchestrator.New(repo, agent, gate.NewValidator(client), consistency.NewChecker(client))
	if err != nil {
		log.Fatalf("failed to create orchestrator: %v", err)
	}

	fingerprint, err := stages.Fingerprint()
	if err != nil {
		log.Fatalf("failed to fingerprint question sets: %v", err)
	}
	slog.Info("question sets loaded", "fingerprint", fingerprint)

	router := gin.Default()
	router.Use(otelgin.Middleware("charter-service"))
	routes.SetupRoutes(router, orch)

	log.Println("Starting the charter server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
