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
	"github.com/prometheus/client_golang/prometheus"
)

const (
	codecMetricSubsystem    = "codec"
	registryMetricSubsystem = "registry"
)

var (
	CodecEncodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: graphjsonNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "encode_total",
			Help:      "对象图编码次数",
		}, []string{resultLabelName})

	CodecDecodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: graphjsonNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "decode_total",
			Help:      "图文档解码次数",
		}, []string{resultLabelName})

	CodecDecodeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: graphjsonNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "decode_latency",
			Help:      "图文档解码耗时，单位毫秒",
			Buckets:   buckets,
		}, []string{resultLabelName})

	CodecDocumentBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: graphjsonNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "document_bytes",
			Help:      "序列化后图文档的字节数",
			Buckets:   sizeBuckets,
		}, []string{directionLabelName})

	// CodecReferencesTotal 编码方向统计被折叠为 @id 编号的重复对象，
	// 解码方向统计由编号还原的引用。
	CodecReferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: graphjsonNamespace,
			Subsystem: codecMetricSubsystem,
			Name:      "references_total",
			Help:      "处理的对象引用数量",
		}, []string{directionLabelName})

	RegistryLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: graphjsonNamespace,
			Subsystem: registryMetricSubsystem,
			Name:      "load_total",
			Help:      "类型定义加载次数",
		}, []string{resultLabelName})

	RegistryCachedTypes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: graphjsonNamespace,
			Subsystem: registryMetricSubsystem,
			Name:      "cached_types",
			Help:      "已缓存的类型定义数量",
		})
)

// RegisterCodecMetrics 注册编解码相关指标。
func RegisterCodecMetrics(r prometheus.Registerer) {
	r.MustRegister(CodecEncodeTotal)
	r.MustRegister(CodecDecodeTotal)
	r.MustRegister(CodecDecodeLatency)
	r.MustRegister(CodecDocumentBytes)
	r.MustRegister(CodecReferencesTotal)
}

// RegisterRegistryMetrics 注册类型注册表相关指标。
func RegisterRegistryMetrics(r prometheus.Registerer) {
	r.MustRegister(RegistryLoadTotal)
	r.MustRegister(RegistryCachedTypes)
}

// ResultLabel 根据错误返回 result 标签值。
func ResultLabel(err error) string {
	if err != nil {
		return FailLabel
	}
	return SuccessLabel
}
