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
	"strings"
)

// ConnectionState contains the values of all connection properties of one connection.
// A ConnectionState is not safe for concurrent use, in the same way as the connection that owns it.
type ConnectionState struct {
	properties map[string]ConnectionPropertyValue
}

// ExtractValues extracts a map of ConnectionPropertyValue from a map of strings.
// The converter function that is registered for the corresponding ConnectionProperty
// is used to convert the string value to the actual value. Keys in values must be
// lower case. A key may be written with or without underscores.
func ExtractValues(properties map[string]ConnectionProperty, values map[string]string) (map[string]ConnectionPropertyValue, error) {
	result := make(map[string]ConnectionPropertyValue)
	for _, prop := range properties {
		value, err := extractValue(prop, values)
		if err != nil {
			return nil, err
		}
		if value != nil {
			result[prop.Key()] = value
		}
	}
	return result, nil
}

func extractValue(prop ConnectionProperty, values map[string]string) (ConnectionPropertyValue, error) {
	strVal, ok := values[prop.Key()]
	if !ok {
		strVal, ok = values[strings.ReplaceAll(prop.Key(), "_", "")]
		if !ok {
			// No value found.
			return nil, nil
		}
	}
	val, err := prop.Convert(strVal)
	if err != nil {
		return nil, err
	}
	return prop.CreateInitialValue(val)
}

// NewConnectionState creates a new ConnectionState instance with the given initial values.
// Properties without an initial value get their default value.
func NewConnectionState(properties map[string]ConnectionProperty, initialValues map[string]ConnectionPropertyValue) *ConnectionState {
	state := &ConnectionState{
		properties: make(map[string]ConnectionPropertyValue, len(properties)),
	}
	for key, value := range initialValues {
		state.properties[key] = value.Copy()
	}
	for key, value := range properties {
		if _, ok := state.properties[key]; !ok {
			state.properties[key] = value.CreateDefaultValue()
		}
	}
	return state
}

// Reset the state to the initial values. Only the properties with a Context equal to or higher
// than the given Context will be reset. E.g. if the given Context is ContextUser, then properties
// with ContextStartup will not be reset.
func (cs *ConnectionState) Reset(context Context) error {
	for _, value := range cs.properties {
		if value.ConnectionProperty().Context() >= context {
			if err := value.ResetValue(context); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetValue returns the current value of the property with the given key.
func (cs *ConnectionState) GetValue(key string) (any, bool) {
	value, ok := cs.properties[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	return value.GetValue(), true
}
