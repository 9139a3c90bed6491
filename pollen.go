// Package pollen provides a Go-native runtime for registering pluggable
// LLM tool-calling adapters and orchestrating bounded runs over them.
//
// This file provides re-exports for the types and constructors from the
// core, registry, loader, factory, manager, agent, and bus subpackages.
// A single pollen.* import covers the common composition path from adapter
// registration through a bounded tool-calling run.
//
// For new code, consider importing subpackages directly for clearer dependencies:
//
//	import "github.com/petal-labs/pollen/core"
//	import "github.com/petal-labs/pollen/manager"
//	import "github.com/petal-labs/pollen/agent"
//	import "github.com/petal-labs/pollen/bus"
package pollen

import (
	"context"

	"github.com/petal-labs/pollen/agent"
	"github.com/petal-labs/pollen/bus"
	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/factory"
	"github.com/petal-labs/pollen/loader"
	"github.com/petal-labs/pollen/manager"
	"github.com/petal-labs/pollen/registry"
)

// =============================================================================
// Core Package Re-exports
// =============================================================================

// Type aliases from core package
type (
	// Adapter translates between the neutral tool schema and one provider
	// wire format, and executes tools addressed by name.
	Adapter = core.Adapter

	// Configurable is implemented by adapters that accept configuration
	// before first use.
	Configurable = core.Configurable

	// ModelClient abstracts a single chat-completion backend.
	ModelClient = core.ModelClient

	// ModelRequest is the provider-neutral completion request.
	ModelRequest = core.ModelRequest

	// ModelResponse captures the output of one model call.
	ModelResponse = core.ModelResponse

	// ModelMessage is a chat message in neutral format.
	ModelMessage = core.ModelMessage

	// ModelToolCall is a tool invocation requested by the model.
	ModelToolCall = core.ModelToolCall

	// ModelToolResult carries a tool outcome back to the model.
	ModelToolResult = core.ModelToolResult

	// ModelUsage tracks token consumption across calls.
	ModelUsage = core.ModelUsage

	// ParamType is the wire-neutral type of a tool parameter.
	ParamType = core.ParamType

	// Capability labels what a tool is for.
	Capability = core.Capability

	// ToolParameter describes one input of a tool.
	ToolParameter = core.ToolParameter

	// ToolSchema is the provider-neutral description of a tool.
	ToolSchema = core.ToolSchema

	// ToolFunc is the execution body of a tool.
	ToolFunc = core.ToolFunc

	// Tool pairs a schema with its execution body.
	Tool = core.Tool

	// ToolOption customizes a reflected tool schema.
	ToolOption = core.ToolOption

	// Toolset is a named collection of tools with unique names.
	Toolset = core.Toolset

	// Event is a structured record of one orchestration step.
	Event = core.Event

	// EventKind identifies the type of an orchestration event.
	EventKind = core.EventKind

	// EventEmitter is a function type for emitting events.
	EventEmitter = core.EventEmitter

	// EventEmitterDecorator wraps an emitter with extra behavior.
	EventEmitterDecorator = core.EventEmitterDecorator

	// EventPublisher receives events from an orchestration run.
	EventPublisher = core.EventPublisher

	// EventHandler is a function type for handling events.
	EventHandler = core.EventHandler

	// ConfigError reports an invalid adapter descriptor or option.
	ConfigError = core.ConfigError

	// ConflictError reports a duplicate registration.
	ConflictError = core.ConflictError

	// ProtocolError reports an adapter that violates the adapter contract.
	ProtocolError = core.ProtocolError

	// ResolutionError reports a failed adapter resolution.
	ResolutionError = core.ResolutionError

	// ToolNotFoundError reports a tool lookup miss.
	ToolNotFoundError = core.ToolNotFoundError

	// FallbackAttempt records one failed candidate in a fallback chain.
	FallbackAttempt = core.FallbackAttempt

	// FallbackError reports a fallback chain that exhausted all candidates.
	FallbackError = core.FallbackError
)

// ParamType constants
const (
	TypeString  = core.TypeString
	TypeInteger = core.TypeInteger
	TypeNumber  = core.TypeNumber
	TypeBoolean = core.TypeBoolean
	TypeArray   = core.TypeArray
	TypeObject  = core.TypeObject
	TypeAny     = core.TypeAny
)

// Message role constants
const (
	RoleSystem    = core.RoleSystem
	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleTool      = core.RoleTool
)

// CapabilityGeneral is the default capability for tools that declare none.
const CapabilityGeneral = core.CapabilityGeneral

// EventKind constants
const (
	EventRunStarted    = core.EventRunStarted
	EventModelCall     = core.EventModelCall
	EventModelResponse = core.EventModelResponse
	EventToolCall      = core.EventToolCall
	EventToolResult    = core.EventToolResult
	EventToolFailed    = core.EventToolFailed
	EventRunFinished   = core.EventRunFinished
)

// Core package constructors and helpers
var (
	NewTool             = core.NewTool
	NewFuncTool         = core.NewFuncTool
	NewToolset          = core.NewToolset
	NewEvent            = core.NewEvent
	MultiEventHandler   = core.MultiEventHandler
	ChannelEventHandler = core.ChannelEventHandler
	VerifyAdapter       = core.VerifyAdapter
	ExecuteToolByName   = core.ExecuteToolByName
	ValidParamType      = core.ValidParamType
)

// Tool schema options
var (
	WithName        = core.WithName
	WithDescription = core.WithDescription
	WithCapability  = core.WithCapability
	WithAIRequired  = core.WithAIRequired
	WithReturns     = core.WithReturns
)

// =============================================================================
// Registry Package Re-exports
// =============================================================================

// Type aliases from registry package
type (
	// Registry holds named adapters with lazy resolution and metadata.
	Registry = registry.Registry

	// Registration is a read-only view of one registry entry.
	Registration = registry.Registration

	// RegisterOption customizes a single registration.
	RegisterOption = registry.RegisterOption

	// Resolver produces an adapter on first use.
	Resolver = registry.Resolver

	// Locator maps module references to resolvers, including plugin paths.
	Locator = registry.Locator
)

// PluginSymbol is the symbol a compiled adapter plugin must export.
const PluginSymbol = registry.PluginSymbol

// ErrNotRegistered is returned when an adapter name is unknown.
var ErrNotRegistered = registry.ErrNotRegistered

// Registry package constructors
var (
	NewRegistry  = registry.New
	NewLocator   = registry.NewLocator
	WithOverride = registry.WithOverride
	WithMetadata = registry.WithMetadata
)

// =============================================================================
// Loader Package Re-exports
// =============================================================================

// Type aliases from loader package
type (
	// Loader turns configuration documents into registry entries.
	Loader = loader.Loader

	// Descriptor declares one adapter in a configuration document.
	Descriptor = loader.Descriptor

	// ConfigFile is a parsed adapter configuration document.
	ConfigFile = loader.Config
)

// DefaultEnvPrefix is the prefix for adapter declarations in the environment.
const DefaultEnvPrefix = loader.DefaultEnvPrefix

// Loader package constructors and helpers
var (
	NewLoader       = loader.New
	ParseFile       = loader.ParseFile
	CheckDescriptor = loader.CheckDescriptor
)

// =============================================================================
// Factory Package Re-exports
// =============================================================================

// Type aliases from factory package
type (
	// Factory builds configured adapter instances with caching.
	Factory = factory.Factory

	// Builder constructs an adapter from a configuration map.
	Builder = factory.Builder

	// CreateOption customizes a single factory build.
	CreateOption = factory.CreateOption
)

// DefaultCacheSize bounds the factory instance cache when unset.
const DefaultCacheSize = factory.DefaultCacheSize

// Factory package constructors
var (
	NewFactory   = factory.New
	WithoutCache = factory.WithoutCache
)

// =============================================================================
// Manager Package Re-exports
// =============================================================================

// Type aliases from manager package
type (
	// Manager composes registry, locator, loader, and factory behind one API.
	Manager = manager.Manager

	// ManagerOption configures a Manager.
	ManagerOption = manager.Option

	// ReloadScheduler re-resolves registered adapters on a cron schedule.
	ReloadScheduler = manager.ReloadScheduler

	// ReloadSchedulerConfig configures a ReloadScheduler.
	ReloadSchedulerConfig = manager.ReloadSchedulerConfig
)

// ErrStrategyNotFound is returned when a fallback strategy label is unknown.
var ErrStrategyNotFound = manager.ErrStrategyNotFound

// Manager package constructors
var (
	NewManager         = manager.New
	NewReloadScheduler = manager.NewReloadScheduler
)

// Manager options. Loader, factory, and registry expose their own option
// sets under their packages; these configure the composed Manager.
var (
	WithLogger    = manager.WithLogger
	WithRegistry  = manager.WithRegistry
	WithLocator   = manager.WithLocator
	WithCacheSize = manager.WithCacheSize
	WithEnvPrefix = manager.WithEnvPrefix
)

// =============================================================================
// Agent Package Re-exports
// =============================================================================

// Type aliases from agent package
type (
	// Orchestrator drives the bounded tool-calling loop.
	Orchestrator = agent.Orchestrator

	// OrchestratorConfig configures an Orchestrator.
	OrchestratorConfig = agent.Config

	// Result is the outcome of one orchestration run.
	Result = agent.Result

	// ToolCallRecord is one tool invocation observed during a run.
	ToolCallRecord = agent.ToolCallRecord

	// RunError wraps a failure with the run state at the time it occurred.
	RunError = agent.RunError

	// State is the terminal or in-flight phase of a run.
	State = agent.State
)

// Run state constants
const (
	StateSending       = agent.StateSending
	StateAwaitingTool  = agent.StateAwaitingTool
	StateDone          = agent.StateDone
	StateMaxIterations = agent.StateMaxIterations
)

// DefaultMaxIterations bounds a run when no ceiling is configured.
const DefaultMaxIterations = agent.DefaultMaxIterations

// MaxIterationsMessage is the content reported when a run hits its ceiling.
const MaxIterationsMessage = agent.MaxIterationsMessage

// Agent package constructors
var (
	NewOrchestrator = agent.New
)

// =============================================================================
// Bus Package Re-exports
// =============================================================================

// Type aliases from bus package
type (
	// EventBus fans orchestration events out to subscribers.
	EventBus = bus.EventBus

	// Subscription is one subscriber's view of an event stream.
	Subscription = bus.Subscription

	// MemBus is an in-process EventBus implementation.
	MemBus = bus.MemBus

	// MemBusConfig configures a MemBus.
	MemBusConfig = bus.MemBusConfig
)

// Bus package constructors
var (
	NewMemBus = bus.NewMemBus
)

// =============================================================================
// Convenience helper functions
// =============================================================================

// Orchestrate runs one prompt through a fresh orchestrator built from cfg.
// It is the short form of agent.New followed by Run.
func Orchestrate(ctx context.Context, cfg OrchestratorConfig, prompt string) (Result, error) {
	orch, err := agent.New(cfg)
	if err != nil {
		return Result{}, err
	}
	return orch.Run(ctx, prompt)
}

// OrchestrateWithPublisher is Orchestrate with run events delivered to pub.
func OrchestrateWithPublisher(ctx context.Context, cfg OrchestratorConfig, prompt string, pub EventPublisher) (Result, error) {
	cfg.Publisher = pub
	return Orchestrate(ctx, cfg, prompt)
}

// MustToolset is like NewToolset but panics on duplicate tool names.
// Useful in tests and examples.
func MustToolset(tools ...*Tool) *Toolset {
	ts, err := core.NewToolset(tools...)
	if err != nil {
		panic(err)
	}
	return ts
}

// MustTool is like NewTool but panics when reflection rejects fn.
// Useful in tests and examples.
func MustTool(fn any, opts ...ToolOption) *Tool {
	t, err := core.NewTool(fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}
