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

package pgstmtdriver

import (
	"github.com/hashicorp/go-version"
	"github.com/sqlstmt/go-sql-pgstmt/connectionstate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// connectionProperties contains all supported connection properties.
// These properties are added to all connectionstate.ConnectionState instances that are created for connections.
var connectionProperties = map[string]connectionstate.ConnectionProperty{}

// The following variables define the connectionstate.ConnectionProperty instances that are supported by the driver.
// They are defined as global variables, so they can be used directly in the driver to get/set the state of exactly
// that property.

var propertyLobChunkSize = createConnectionProperty(
	"lob_chunk_size",
	"The number of bytes that are read from a stream and written to a large object in one write call.",
	defaultLobChunkSize,
	nil,
	connectionstate.ContextUser,
	connectionstate.ConvertPositiveInt,
)
var propertyReprepareParameterBatches = createConnectionProperty(
	"reprepare_parameter_batches",
	"Deallocate the server-side prepared statement before each entry of a parameter batch. "+
		"Text batches are always re-prepared for each entry.",
	false,
	nil,
	connectionstate.ContextUser,
	connectionstate.ConvertBool,
)
var propertyDisableTextStreaming = createConnectionProperty(
	"disable_text_streaming",
	"Always copy character streams to a large object, also if the server accepts them as text parameters.",
	false,
	nil,
	connectionstate.ContextUser,
	connectionstate.ConvertBool,
)
var propertyMinTextStreamingVersion = createConnectionProperty(
	"min_text_streaming_version",
	"The minimum PostgreSQL server version that accepts character streams as text parameters. "+
		"Can only be set at start up.",
	"7.2",
	nil,
	connectionstate.ContextStartup,
	convertVersion,
)
var propertyStatementCacheSize = createConnectionProperty(
	"statement_cache_size",
	"The number of parsed SQL strings that are cached. Can only be set at start up.",
	1000,
	nil,
	connectionstate.ContextStartup,
	connectionstate.ConvertPositiveInt,
)

func createConnectionProperty[T comparable](name, description string, defaultValue T, validValues []T, context connectionstate.Context, converter func(value string) (T, error)) *connectionstate.TypedConnectionProperty[T] {
	prop := connectionstate.CreateConnectionProperty(name, description, defaultValue, validValues, context, converter)
	connectionProperties[prop.Key()] = prop
	return prop
}

func convertVersion(value string) (string, error) {
	if _, err := version.NewVersion(value); err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid server version %q: %v", value, err)
	}
	return value, nil
}
