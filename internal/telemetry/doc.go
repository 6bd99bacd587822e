// Package telemetry 封装 OpenTelemetry SDK 的装配，
// 为 RagLoop 提供统一的 TracerProvider、MeterProvider 与传播器注册。
// 遥测禁用时返回 noop Providers，不连接 collector，
// 引擎内的 span 调用照常编译但不产生导出。
package telemetry
