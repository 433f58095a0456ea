// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

const (
	AttrToolName        = "tool.name"
	AttrToolVersion     = "tool.version"
	AttrToolSubtool     = "tool.subtool"
	AttrToolBackendKind = "tool.backend_kind"
	AttrRetrieverName   = "retriever.name"
	AttrRetrieverKind   = "retriever.kind"
	AttrRetrieverTopK   = "retriever.top_k"
	AttrResultCount     = "result.count"
	AttrErrorKind       = "error.kind"

	SpanToolExecute       = "tool.execute"
	SpanRetrieverRetrieve = "retriever.retrieve"
	SpanCompositeMember   = "retriever.composite_member"
	SpanHTTPRequest       = "http.request"

	InstrumentationTools      = "conductor.tools"
	InstrumentationRetrievers = "conductor.retrievers"
	InstrumentationHTTP       = "conductor.http"

	DefaultServiceName  = "conductor"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
	DefaultNamespace    = "conductor"
)
