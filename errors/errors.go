/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	// ErrKeyNotFound is returned when a read or write addresses an undeclared key
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyConflict is returned when a key is redeclared with a different kind
	ErrKeyConflict = errors.New("key conflict")

	// ErrDocumentNotFound is returned when exactly one document was required but none matched
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentNotValid is returned when a document fails validation before persistence
	ErrDocumentNotValid = errors.New("document not valid")

	// ErrTypeMismatch is returned when a value is structurally incompatible with a key kind
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrSchemaFrozen is returned when declaring schema after the registry was frozen
	ErrSchemaFrozen = errors.New("schema is frozen")

	// ErrAlreadyEmbedded is returned when attaching a sub-document that already has a parent
	ErrAlreadyEmbedded = errors.New("document already embedded in another parent")

	// ErrUnsupported is returned by drivers for operations the backing store cannot express
	ErrUnsupported = errors.New("operation not supported by store")
)

// KeyNotFoundError represents an access to a key that is not part of a type's resolved keys
type KeyNotFoundError struct {
	Type string
	Key  string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("%s has no key %q", e.Type, e.Key)
}

func (e *KeyNotFoundError) Is(target error) bool {
	return target == ErrKeyNotFound
}

// KeyConflictError represents an incompatible key redeclaration
type KeyConflictError struct {
	Type      string
	Key       string
	Existing  string
	Requested string
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("%s key %q already declared as %s, cannot redeclare as %s", e.Type, e.Key, e.Existing, e.Requested)
}

func (e *KeyConflictError) Is(target error) bool {
	return target == ErrKeyConflict
}

// DocumentNotFoundError represents a failed lookup by identity
type DocumentNotFoundError struct {
	Type string
	ID   string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("%s with id %q not found", e.Type, e.ID)
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrDocumentNotFound
}

// DocumentNotValidError carries the aggregated validation messages of a document
type DocumentNotValidError struct {
	Type     string
	Messages []string
}

func (e *DocumentNotValidError) Error() string {
	return "Validation failed: " + strings.Join(e.Messages, ", ")
}

func (e *DocumentNotValidError) Is(target error) bool {
	return target == ErrDocumentNotValid
}

// TypeMismatchError represents a value that cannot be coerced into a kind
type TypeMismatchError struct {
	Kind  string
	Value any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot cast %T to %s", e.Value, e.Kind)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Helper functions for creating errors

// NewKeyNotFoundError creates a new KeyNotFoundError
func NewKeyNotFoundError(entityType, key string) error {
	return &KeyNotFoundError{Type: entityType, Key: key}
}

// NewKeyConflictError creates a new KeyConflictError
func NewKeyConflictError(entityType, key, existing, requested string) error {
	return &KeyConflictError{Type: entityType, Key: key, Existing: existing, Requested: requested}
}

// NewDocumentNotFoundError creates a new DocumentNotFoundError
func NewDocumentNotFoundError(entityType string, id any) error {
	return &DocumentNotFoundError{Type: entityType, ID: fmt.Sprint(id)}
}

// NewDocumentNotValidError creates a new DocumentNotValidError
func NewDocumentNotValidError(entityType string, messages []string) error {
	return &DocumentNotValidError{Type: entityType, Messages: messages}
}

// NewTypeMismatchError creates a new TypeMismatchError
func NewTypeMismatchError(kind string, value any) error {
	return &TypeMismatchError{Kind: kind, Value: value}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsKeyNotFound checks if an error is a key not found error
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsKeyConflict checks if an error is a key conflict error
func IsKeyConflict(err error) bool {
	return errors.Is(err, ErrKeyConflict)
}

// IsDocumentNotFound checks if an error is a document not found error
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsDocumentNotValid checks if an error is a document not valid error
func IsDocumentNotValid(err error) bool {
	return errors.Is(err, ErrDocumentNotValid)
}

// IsTypeMismatch checks if an error is a type mismatch error
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Is is errors.Is, re-exported so callers importing this package need no alias
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As, re-exported so callers importing this package need no alias
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers importing this package need no alias
func New(text string) error {
	return errors.New(text)
}
