// Package aigallery is a web gallery that describes uploaded images with a
// vision model.
//
// Features:
// - User registration, login and logout (JWT sessions, revocation in Redis)
// - Image upload to local disk or an S3-compatible bucket
// - Storage webhook that asks Gemini for a description and color palette,
//   embeds the description and stores the record (SQLite or Postgres/pgvector)
// - Upload progress by polling, with live updates over server-sent events
// - HTML gallery with thumbnails and palette swatches
// - Rate limiting
//
// Example usage:
//   go run main.go
//
// Configuration:
//   See config/config.json; every key can be overridden with an
//   AIGALLERY_ prefixed environment variable or a .env file.
//
// API Documentation:
//   All routes are registered in internal/api/handler.go
package main
