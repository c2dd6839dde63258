package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/ternsql/tern/log"
)

// Carrier 是跨进程边界传递SpanContext的通用载体
// text-map、HTTP头、二进制三种Propagator都只依赖这个最小接口
type Carrier interface {
	Get(key string) string
	Set(key, value string)
	Keys() []string
}

// textMapCarrier 是Carrier的默认实现，用一个普通map保存键值对
type textMapCarrier struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewTextMapCarrier 创建一个空的、map支撑的Carrier
func NewTextMapCarrier() Carrier {
	return &textMapCarrier{data: make(map[string]string)}
}

func (c *textMapCarrier) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

func (c *textMapCarrier) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *textMapCarrier) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// SpanContext 是一个span在进程间可传播的部分：trace id、span id和baggage。
// 不包含任何仅在本进程内有意义的状态（开始时间、标签等都留在Span上）。
type SpanContext interface {
	TraceID() string
	SpanID() string
	IsValid() bool
	SetBaggageItem(key, value string) SpanContext
	GetBaggageItem(key string) string
	ForeachBaggageItem(handler func(k, v string) bool)
}

// spanContext是SpanContext的唯一实现
type spanContext struct {
	mu      sync.RWMutex
	traceID string
	spanID  string
	baggage map[string]string
}

func (c *spanContext) TraceID() string { return c.traceID }
func (c *spanContext) SpanID() string  { return c.spanID }

// IsValid 要求trace id和span id都非空，EmptySpanContext()两者皆空
func (c *spanContext) IsValid() bool {
	return c.traceID != "" && c.spanID != ""
}

func (c *spanContext) SetBaggageItem(key, value string) SpanContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baggage == nil {
		c.baggage = make(map[string]string)
	}
	c.baggage[key] = value
	return c
}

func (c *spanContext) GetBaggageItem(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baggage[key]
}

func (c *spanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	c.mu.RLock()
	items := make(map[string]string, len(c.baggage))
	for k, v := range c.baggage {
		items[k] = v
	}
	c.mu.RUnlock()
	for k, v := range items {
		if !handler(k, v) {
			return
		}
	}
}

// EmptySpanContext 返回一个IsValid()为false的SpanContext，用作Extract失败
// 或者上下文中不存在span时的零值
func EmptySpanContext() SpanContext {
	return &spanContext{}
}

// newSpanContext 生成一个全新的、有效的SpanContext，如果parent非nil且有效
// 则复用其TraceID（子span与父span同属一条链路），否则开启新的trace
func newSpanContext(parent SpanContext) *spanContext {
	traceID := newID()
	if parent != nil && parent.IsValid() {
		traceID = parent.TraceID()
	}
	return &spanContext{traceID: traceID, spanID: newID(), baggage: make(map[string]string)}
}

func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Propagator 在SpanContext和某种载体格式之间转换，三种内置实现见
// propagator.go (text-map、HTTP头、二进制)
type Propagator interface {
	Inject(ctx SpanContext, carrier Carrier) error
	Extract(carrier Carrier) (SpanContext, error)
}

// Span 是一次被追踪的操作，从StartSpan/StartSpanFromContext开始，
// 到Finish/FinishWithError结束
type Span interface {
	Context() SpanContext
	SetOperationName(name string) Span
	SetTag(key string, value interface{}) Span
	SetBaggageItem(key, value string) Span
	BaggageItem(key string) string
	Finish()
	FinishWithError(err error)
}

// span是Span的默认实现，没有外部追踪后端，生命周期事件经log包落地，
// 风格上与Status没有包装专门的错误库一致：这里也没有包装专门的追踪SDK
type span struct {
	mu            sync.Mutex
	ctx           *spanContext
	operationName string
	tags          map[string]interface{}
	startTime     time.Time
	finished      bool
}

func newSpan(operationName string, options ...SpanOption) *span {
	opts := spanStartOptions{startTime: time.Now()}
	for _, opt := range options {
		opt(&opts)
	}
	s := &span{
		ctx:           newSpanContext(opts.parent),
		operationName: operationName,
		tags:          make(map[string]interface{}),
		startTime:     opts.startTime,
	}
	for k, v := range opts.tags {
		s.tags[k] = v
	}
	return s
}

func (s *span) Context() SpanContext { return s.ctx }

func (s *span) SetOperationName(name string) Span {
	s.mu.Lock()
	s.operationName = name
	s.mu.Unlock()
	return s
}

func (s *span) SetTag(key string, value interface{}) Span {
	s.mu.Lock()
	s.tags[key] = value
	s.mu.Unlock()
	return s
}

func (s *span) SetBaggageItem(key, value string) Span {
	s.ctx.SetBaggageItem(key, value)
	return s
}

func (s *span) BaggageItem(key string) string {
	return s.ctx.GetBaggageItem(key)
}

func (s *span) Finish() {
	s.finish(nil)
}

func (s *span) FinishWithError(err error) {
	s.finish(err)
}

func (s *span) finish(err error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	dur := time.Since(s.startTime)
	op := s.operationName
	evt := log.Debug().
		Str("trace_id", s.ctx.traceID).
		Str("span_id", s.ctx.spanID).
		Str("operation", op).
		Dur("duration", dur)
	for k, v := range s.tags {
		evt = evt.Str("tag."+k, fmt.Sprint(v))
	}
	s.mu.Unlock()

	if err != nil {
		evt.Err(err).Msg("span finished with error")
		return
	}
	evt.Msg("span finished")
}

// spanStartOptions collects the options a SpanOption applies.
type spanStartOptions struct {
	parent    SpanContext
	startTime time.Time
	tags      map[string]interface{}
}

// SpanOption configures a span at StartSpan/StartSpanFromContext time.
type SpanOption func(*spanStartOptions)

// ChildOf marks the new span as a child of parent, inheriting its trace id.
func ChildOf(parent SpanContext) SpanOption {
	return func(o *spanStartOptions) { o.parent = parent }
}

// Tag pre-sets a tag on the new span, equivalent to calling SetTag right
// after StartSpan.
func Tag(key string, value interface{}) SpanOption {
	return func(o *spanStartOptions) {
		if o.tags == nil {
			o.tags = make(map[string]interface{})
		}
		o.tags[key] = value
	}
}

// noopSpan实现Span接口但不记录任何东西，NewNoopTracer().StartSpan的返回值
type noopSpan struct{}

// NewNoopSpan 返回一个不做任何事情的Span，Context()固定为EmptySpanContext()
func NewNoopSpan() Span {
	return noopSpan{}
}

func (noopSpan) Context() SpanContext                 { return EmptySpanContext() }
func (s noopSpan) SetOperationName(string) Span       { return s }
func (s noopSpan) SetTag(string, interface{}) Span    { return s }
func (s noopSpan) SetBaggageItem(string, string) Span { return s }
func (noopSpan) BaggageItem(string) string             { return "" }
func (noopSpan) Finish()                                {}
func (noopSpan) FinishWithError(error)                  {}

// Tracer创建和管理span，并在SpanContext与Carrier之间做注入/提取
type Tracer interface {
	StartSpan(operationName string, options ...SpanOption) Span
	StartSpanFromContext(ctx context.Context, operationName string, options ...SpanOption) (Span, context.Context)
	Extract(format interface{}, carrier interface{}) (SpanContext, error)
	Inject(ctx SpanContext, format interface{}, carrier interface{}) error
	RegisterPropagator(format interface{}, propagator Propagator)
	Close() error
}

// TracerConfig跟rpc/cfg.go里的各Config一样，是一个config.ConfigManager
// 可以热加载的配置对象
type TracerConfig struct {
	ServiceName string  `mapstructure:"serviceName"`
	SampleRate  float64 `mapstructure:"sampleRate"`
}

// GetName实现config.Config接口
func (c *TracerConfig) GetName() string { return "tracing" }

// Validate实现config.Config接口
func (c *TracerConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("tracing: sampleRate %v out of range [0,1]", c.SampleRate)
	}
	return nil
}

// DefaultTracerConfig 采样率为1.0（全量记录），服务名默认为"tern-rpc"
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{ServiceName: "tern-rpc", SampleRate: 1.0}
}

// TracerBuilder用builder模式把一份TracerConfig变成一个Tracer，
// 与rpc/reactor.go等组件从XxxConfig构造出实例的方式保持一致
type TracerBuilder struct {
	cfg TracerConfig
}

// NewTracerBuilder创建一个以cfg为蓝本的TracerBuilder
func NewTracerBuilder(cfg TracerConfig) *TracerBuilder {
	return &TracerBuilder{cfg: cfg}
}

// Build校验配置并返回一个localTracer
func (b *TracerBuilder) Build() (Tracer, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	return &localTracer{cfg: b.cfg, propagators: make(map[string]Propagator)}, nil
}

// localTracer是Tracer的默认实现：span生命周期经log包落地，不连接任何
// 外部追踪后端——this tracer/tracing包本身就是事后重建的最小可用实现,
// 语义上等价于一个进程内、日志驱动的tracer
type localTracer struct {
	cfg TracerConfig

	mu          sync.RWMutex
	propagators map[string]Propagator
}

func (t *localTracer) StartSpan(operationName string, options ...SpanOption) Span {
	if !t.sampled() {
		return NewNoopSpan()
	}
	return newSpan(operationName, options...)
}

func (t *localTracer) StartSpanFromContext(ctx context.Context, operationName string, options ...SpanOption) (Span, context.Context) {
	if parent := SpanFromContext(ctx); parent.IsValid() {
		options = append(options, ChildOf(parent))
	}
	s := t.StartSpan(operationName, options...)
	return s, ContextWithSpan(ctx, s)
}

func (t *localTracer) sampled() bool {
	return t.cfg.SampleRate >= 1
}

func (t *localTracer) lookup(format, carrier interface{}) (Propagator, Carrier, bool) {
	key, ok := format.(string)
	if !ok {
		return nil, nil, false
	}
	c, ok := carrier.(Carrier)
	if !ok {
		return nil, nil, false
	}
	t.mu.RLock()
	p, ok := t.propagators[key]
	t.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	return p, c, true
}

func (t *localTracer) Extract(format interface{}, carrier interface{}) (SpanContext, error) {
	p, c, ok := t.lookup(format, carrier)
	if !ok {
		return EmptySpanContext(), nil
	}
	return p.Extract(c)
}

func (t *localTracer) Inject(ctx SpanContext, format interface{}, carrier interface{}) error {
	p, c, ok := t.lookup(format, carrier)
	if !ok {
		return nil
	}
	return p.Inject(ctx, c)
}

func (t *localTracer) RegisterPropagator(format interface{}, propagator Propagator) {
	key, ok := format.(string)
	if !ok {
		return
	}
	t.mu.Lock()
	t.propagators[key] = propagator
	t.mu.Unlock()
}

func (t *localTracer) Close() error { return nil }
