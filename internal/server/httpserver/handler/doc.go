// Package handler provides HTTP request handlers for clipshare.
//
// This package implements the REST API over clipboard entries and the
// health endpoint. Successful responses are bare JSON documents; errors
// are {"code","message"} objects with the code repeated in X-Error-Code.
package handler
