// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connectionstate

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Context indicates when a ConnectionProperty may be set.
type Context int

const (
	// ContextStartup is used for ConnectionProperty instances that may only be set at startup and may not be changed
	// during the lifetime of a connection.
	ContextStartup Context = iota
	// ContextUser is used for ConnectionProperty instances that may be set both at startup and during the lifetime of
	// a connection.
	ContextUser
)

func (c Context) String() string {
	switch c {
	case ContextStartup:
		return "Startup"
	case ContextUser:
		return "User"
	default:
		return "Unknown"
	}
}

// ConnectionProperty defines the public interface for connection properties.
type ConnectionProperty interface {
	// Key returns the unique key of the ConnectionProperty.
	Key() string
	// Description returns a human-readable description of the property.
	Description() string
	// Context returns the Context where the property is allowed to be updated.
	Context() Context
	// CreateDefaultValue creates an initial value of the property with the default value of the property as the current
	// and reset value.
	CreateDefaultValue() ConnectionPropertyValue
	// CreateInitialValue creates an initial value of the property with the given value as the default and reset value.
	CreateInitialValue(value any) (ConnectionPropertyValue, error)
	// Convert converts a string to the corresponding value type of the connection property.
	Convert(value string) (any, error)
}

// CreateConnectionProperty is used to create a new ConnectionProperty with a specific type. This function is intended
// for use by driver implementations at initialization time to define the properties that the driver supports.
// validValues may be nil, in which case every value that the converter accepts is valid.
func CreateConnectionProperty[T comparable](key, description string, defaultValue T, validValues []T, context Context, converter func(value string) (T, error)) *TypedConnectionProperty[T] {
	return &TypedConnectionProperty[T]{
		key:          key,
		description:  description,
		defaultValue: defaultValue,
		validValues:  validValues,
		context:      context,
		converter:    converter,
	}
}

var _ ConnectionProperty = (*TypedConnectionProperty[any])(nil)

// TypedConnectionProperty implements the ConnectionProperty interface.
// All fields are unexported so values can only be changed through a ConnectionState.
type TypedConnectionProperty[T comparable] struct {
	key          string
	description  string
	defaultValue T
	validValues  []T
	context      Context
	converter    func(string) (T, error)
}

func (p *TypedConnectionProperty[T]) String() string {
	return p.Key()
}

func (p *TypedConnectionProperty[T]) Key() string {
	return p.key
}

func (p *TypedConnectionProperty[T]) Description() string {
	return p.description
}

func (p *TypedConnectionProperty[T]) Context() Context {
	return p.context
}

// CreateDefaultValue implements ConnectionProperty.CreateDefaultValue.
func (p *TypedConnectionProperty[T]) CreateDefaultValue() ConnectionPropertyValue {
	return &connectionPropertyValue[T]{
		connectionProperty: p,
		resetValue:         p.defaultValue,
		value:              p.defaultValue,
	}
}

// CreateInitialValue implements ConnectionProperty.CreateInitialValue.
func (p *TypedConnectionProperty[T]) CreateInitialValue(value any) (ConnectionPropertyValue, error) {
	valueT, ok := value.(T)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "invalid type for value: %T", value)
	}
	if err := p.checkValidValue(valueT); err != nil {
		return nil, err
	}
	return &connectionPropertyValue[T]{
		connectionProperty: p,
		resetValue:         valueT,
		value:              valueT,
		hasValue:           true,
	}, nil
}

func (p *TypedConnectionProperty[T]) Convert(value string) (any, error) {
	v, err := p.converter(value)
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, status.Errorf(codes.InvalidArgument, "invalid value for %s: %q: %v", p.key, value, err)
	}
	return v, nil
}

// GetValueOrDefault returns the current value of the property in the given ConnectionState.
// It returns the default of the property if no value is found.
func (p *TypedConnectionProperty[T]) GetValueOrDefault(state *ConnectionState) T {
	if state == nil {
		return p.defaultValue
	}
	if typedValue, ok := state.properties[p.key].(*connectionPropertyValue[T]); ok {
		return typedValue.value
	}
	return p.defaultValue
}

// SetValue sets the value of the property in the given ConnectionState.
//
// The given Context should indicate the current context where the application tries to set the value, e.g. it should
// be ContextUser if the change happens during the lifetime of a connection.
func (p *TypedConnectionProperty[T]) SetValue(state *ConnectionState, value T, context Context) error {
	if p.context < context {
		return status.Errorf(codes.FailedPrecondition, "property %s has context %s and cannot be set in context %s", p.key, p.context, context)
	}
	if err := p.checkValidValue(value); err != nil {
		return err
	}
	current, ok := state.properties[p.key]
	if !ok {
		return unknownPropertyErr(p)
	}
	typedValue, ok := current.(*connectionPropertyValue[T])
	if !ok {
		return status.Errorf(codes.InvalidArgument, "value has wrong type: %T", current)
	}
	typedValue.value = value
	typedValue.hasValue = true
	return nil
}

// ResetValue resets the value of the property in the given ConnectionState to the value it had when the connection
// was created.
func (p *TypedConnectionProperty[T]) ResetValue(state *ConnectionState, context Context) error {
	if p.context < context {
		return status.Errorf(codes.FailedPrecondition, "property %s has context %s and cannot be set in context %s", p.key, p.context, context)
	}
	current, ok := state.properties[p.key]
	if !ok {
		return unknownPropertyErr(p)
	}
	return current.ResetValue(context)
}

func (p *TypedConnectionProperty[T]) checkValidValue(value T) error {
	if p.validValues == nil {
		return nil
	}
	for _, validValue := range p.validValues {
		if value == validValue {
			return nil
		}
	}
	return status.Errorf(codes.InvalidArgument, "invalid value for %s: %v", p.key, value)
}

func unknownPropertyErr(p ConnectionProperty) error {
	return status.Errorf(codes.InvalidArgument, "unrecognized configuration property %q", p.Key())
}

// ConnectionPropertyValue is the public interface for connection state property values.
type ConnectionPropertyValue interface {
	// ConnectionProperty returns the property that this value is for.
	ConnectionProperty() ConnectionProperty
	// Copy creates a shallow copy of the ConnectionPropertyValue.
	Copy() ConnectionPropertyValue
	// HasValue indicates whether this ConnectionPropertyValue has an explicit value.
	HasValue() bool
	// GetValue gets the current value of the property.
	GetValue() any
	// ResetValue resets the value of the property to the value it had at the creation of the connection.
	ResetValue(context Context) error
}

type connectionPropertyValue[T comparable] struct {
	connectionProperty *TypedConnectionProperty[T]
	resetValue         T
	value              T
	hasValue           bool
}

func (v *connectionPropertyValue[T]) ConnectionProperty() ConnectionProperty {
	return v.connectionProperty
}

func (v *connectionPropertyValue[T]) Copy() ConnectionPropertyValue {
	return &connectionPropertyValue[T]{
		connectionProperty: v.connectionProperty,
		resetValue:         v.resetValue,
		value:              v.value,
		hasValue:           v.hasValue,
	}
}

func (v *connectionPropertyValue[T]) HasValue() bool {
	return v.hasValue
}

func (v *connectionPropertyValue[T]) GetValue() any {
	return v.value
}

func (v *connectionPropertyValue[T]) ResetValue(context Context) error {
	if v.connectionProperty.context < context {
		// Startup properties keep their value when the connection is reset.
		return nil
	}
	v.value = v.resetValue
	return nil
}
