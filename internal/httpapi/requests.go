// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaBaseURL prefixes the $id of every request schema.
const SchemaBaseURL = "https://bagbot.dev/schemas/authd/"

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=1024"`
	Name     string `json:"name" jsonschema:"minLength=1,maxLength=100"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1,maxLength=254"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=1024"`
}

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" jsonschema:"minLength=1,maxLength=254"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=1,maxLength=1024"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" jsonschema:"minLength=1"`
}

// Schema names, also the file stem of each schema's $id.
const (
	SchemaRegister       = "register"
	SchemaLogin          = "login"
	SchemaForgotPassword = "forgot_password"
	SchemaResetPassword  = "reset_password"
	SchemaRefresh        = "refresh"
)

var requestTypes = map[string]any{
	SchemaRegister:       &RegisterRequest{},
	SchemaLogin:          &LoginRequest{},
	SchemaForgotPassword: &ForgotPasswordRequest{},
	SchemaResetPassword:  &ResetPasswordRequest{},
	SchemaRefresh:        &RefreshRequest{},
}

// SchemaNames returns the request schema names in sorted order.
func SchemaNames() []string {
	return slices.Sorted(maps.Keys(requestTypes))
}

// GenerateSchema returns the JSON Schema of the named request body.
func GenerateSchema(name string) ([]byte, error) {
	v, ok := requestTypes[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("name", name).Errorf("unknown request schema %q", name)
	}

	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(SchemaBaseURL + name + ".schema.json")
	schema.Title = "authd " + name + " request"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("name", name).Wrap(err)
	}
	return data, nil
}

// compileSchemas compiles every request schema for body validation.
func compileSchemas() (map[string]*jschema.Schema, error) {
	c := jschema.NewCompiler()
	urls := make(map[string]string, len(requestTypes))
	for _, name := range SchemaNames() {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		url := SchemaBaseURL + name + ".schema.json"
		if err := c.AddResource(url, doc); err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		urls[name] = url
	}

	compiled := make(map[string]*jschema.Schema, len(urls))
	for name, url := range urls {
		sch, err := c.Compile(url)
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("name", name).Wrap(err)
		}
		compiled[name] = sch
	}
	return compiled, nil
}
