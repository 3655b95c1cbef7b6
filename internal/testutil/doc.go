// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing device lists and engine backends
// with recording or failure injection. They are not intended for production
// usage.
package testutil
