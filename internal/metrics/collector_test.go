package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.workflowStartsTotal)
	assert.NotNil(t, collector.workflowResumesTotal)
	assert.NotNil(t, collector.interruptsTotal)
	assert.NotNil(t, collector.nodeDuration)
	assert.NotNil(t, collector.conflictsTotal)
	assert.NotNil(t, collector.ingestDocsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录请求
	collector.RecordHTTPRequest("POST", "/ask/start", 202, 100*time.Millisecond, 1024, 2048)

	// 验证指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	// 再记录一次相同的请求
	collector.RecordHTTPRequest("POST", "/ask/start", 202, 50*time.Millisecond, 512, 1024)

	// 验证计数增加
	value := testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/ask/start", "2xx"))
	assert.Equal(t, 2.0, value)
}

func TestCollector_RecordWorkflowLifecycle(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordWorkflowStart("interrupted")
	collector.RecordWorkflowStart("interrupted")
	collector.RecordWorkflowStart("error")
	collector.RecordWorkflowResume("completed")
	collector.RecordWorkflowResume("conflict")
	collector.RecordInterrupt("review")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.workflowStartsTotal.WithLabelValues("interrupted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowStartsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowResumesTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowResumesTotal.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.interruptsTotal.WithLabelValues("review")))
}

func TestCollector_RecordNodeExecution(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordNodeExecution("retrieve", "ok", 80*time.Millisecond)
	collector.RecordNodeExecution("generate", "error", 2*time.Second)

	count := testutil.CollectAndCount(collector.nodeDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordCheckpointConflict(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordCheckpointConflict("save")
	collector.RecordCheckpointConflict("save")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.conflictsTotal.WithLabelValues("save")))
}

func TestCollector_RecordIngest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordIngest("ok", 7, 1200*time.Millisecond)
	collector.RecordIngest("error", 0, 30*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ingestDocsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.ingestDocsTotal.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(collector.ingestChunks))
}

func TestCollector_RecordDatabaseQuery(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录数据库查询
	collector.RecordDBQuery("postgres", "SELECT", 20*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.dbQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 更新连接池状态
	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("POST", "/ask/resume", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordWorkflowResume("completed")
			collector.RecordInterrupt("review")
			done <- true
		}()
	}

	// 等待所有 goroutine 完成
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.workflowResumesTotal.WithLabelValues("completed")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.interruptsTotal.WithLabelValues("review")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	logger := zap.NewNop()

	// 创建自定义 registry
	registry := prometheus.NewRegistry()

	// 创建 collector（会自动注册到默认 registry）
	collector := NewCollector(nextTestNamespace(), logger)

	// 手动注册到自定义 registry
	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	// 记录一些数据
	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 0, 0)

	// 验证可以从自定义 registry 收集指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}
