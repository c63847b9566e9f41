// Package main runs the hair diagnosis API behind API Gateway.
//
// Endpoints:
//
//	GET  /health      health check
//	POST /diagnose    diagnose the front photo
//	POST /synthesize  render a chosen hairstyle and color
//	POST /refine      refine a generated image from an instruction
//	GET  /gallery     list a subject's gallery
//	POST /gallery     store an image in a subject's gallery
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/hair-diagnosis-helper/internal/config"
	"github.com/fpang/hair-diagnosis-helper/internal/lambdaboot"
	"github.com/fpang/hair-diagnosis-helper/internal/logging"
)

var handler http.Handler

func init() {
	logging.Init()

	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	srv, err := lambdaboot.Build(context.Background(), "hair-lambda", cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	handler = srv.Handler()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
