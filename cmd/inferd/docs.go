package main

// General API documentation for swaggo. Run `swag init` here to generate docs.
//
// @title           inferd API
// @version         1.0
// @description     HTTP API for local LLM batched generation and model management.
//
// @contact.name   inferd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
