// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	// 重复调用不会重复注册
	Register(r)
	assert.Equal(t, prometheus.Registerer(r), GetRegisterer())

	CodecDecodeTotal.WithLabelValues(SuccessLabel).Inc()
	CodecEncodeTotal.WithLabelValues(FailLabel).Inc()

	n, err := testutil.GatherAndCount(r, "graphjson_codec_decode_total", "graphjson_codec_encode_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, SuccessLabel, ResultLabel(nil))
	assert.Equal(t, FailLabel, ResultLabel(errors.New("x")))
}
