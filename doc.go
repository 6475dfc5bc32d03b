// Package juliagate provides seamless Julia environment management and Go-Julia
// interoperability without requiring CGO.
//
// Juliagate enables Go applications to provision Julia environments, run Julia
// code, and communicate bidirectionally with Julia processes using pipes. It
// supports Windows, macOS, and Linux platforms.
//
// # Architecture Overview
//
// Juliagate uses a two-stage bootstrap mechanism to launch Julia processes:
//
//  1. Primary Bootstrap: A minimal Julia expression passed with -e that reads
//     the secondary bootstrap from an inherited file descriptor and evaluates it.
//
//  2. Secondary Bootstrap: Decodes the embedded program payload, materializes
//     the embedded modules, wires up the communication pipes, and evaluates
//     the main module.
//
// This design allows Go applications to embed Julia code directly in the binary
// using go:embed and have it executed transparently by the Julia subprocess.
//
// Every process is started with --compiled-modules=no and
// JULIA_PKG_PRECOMPILE_AUTO=0 so that project activation is a pure runtime step.
// This sidesteps precompilation cache incompatibilities between interpreter
// distributions and happens exactly once per process, before any cross-language
// call is made.
//
// # Environment Management
//
// Juliagate provides multiple ways to obtain a Julia environment:
//
//	// Provision a named environment using juliaup (auto-downloads if needed)
//	env, err := juliagate.CreateEnvironmentJuliaup("myenv", "/path/to/root", "1.10", "release", nil)
//
//	// Use the system Julia installation
//	env, err := juliagate.CreateEnvironmentFromSystem()
//
//	// Restore an environment from a frozen JSON specification
//	env, err := juliagate.CreateEnvironmentFromJSONFile("env.json", "/path/to/root", nil)
//
// # Process Types
//
// Juliagate offers three process types for different interaction patterns:
//
// REPLJuliaProcess provides stateful, interactive Julia execution where state
// persists between calls:
//
//	repl, err := env.NewREPLJuliaProcess(nil, nil)
//	result, err := repl.Execute("x = 42", true)
//	result, err := repl.Execute("println(x * 2)", true)  // prints 84
//	repl.Close()
//
// QueueProcess provides bidirectional RPC-style communication using MessagePack:
//
//	queue, err := env.NewQueueProcess(program, nil, nil, nil)
//	result, err := queue.Call("my_julia_function", 30, map[string]interface{}{"arg": "value"})
//	queue.Close()
//
// JuliaExecProcess provides simple expression evaluation with JSON communication:
//
//	exec, err := env.NewJuliaExecProcess(nil, nil)
//	output, err := exec.Exec(`println("hello")`)
//	exec.Close()
//
// # The Funcs Binding
//
// Funcs is a thin, documented binding over a QueueProcess that forwards to
// Julia implementations, coercing numeric results at the language boundary:
//
//	funcs, err := env.NewFuncs(nil, nil)
//	greeting, err := funcs.Hello()      // "Hello from Julia!"
//	doubled, err := funcs.Double(2.5)   // 5.0
//	funcs.Close()
//
// # Embedded Modules
//
// Julia code can be embedded in Go binaries using go:embed:
//
//	//go:embed scripts/mymodule.jl
//	var myModuleSource string
//
//	module := juliagate.NewModuleFromString("mymodule", "scripts/mymodule.jl", myModuleSource)
//
// These modules are materialized by the bootstrap and included before the main
// module runs.
//
// # Package Installation
//
// Environments support package installation via Pkg:
//
//	// Add packages to the active project
//	err := env.PkgAddPackages([]string{"MsgPack", "JSON"}, nil)
//
//	// Instantiate a project from its Project.toml/Manifest.toml
//	err := env.PkgInstantiate("/path/to/project", nil)
//
// # Environment Freezing
//
// Environments can be frozen to JSON for reproducibility:
//
//	err := env.FreezeToFile("environment.json")
//
// The JSON specification includes the Julia version and the direct dependencies
// of the active project, allowing exact environment recreation.
//
// # Key-Value Data Passing
//
// Data can be passed from Go to Julia at process startup via KVPairs:
//
//	program := &juliagate.JuliaProgram{
//	    // ...
//	    KVPairs: map[string]interface{}{
//	        "config_path": "/path/to/config",
//	        "debug_mode":  true,
//	    },
//	}
//
// In Julia, these are accessible through the Juliagate bootstrap module:
//
//	Juliagate.kv["config_path"]  # "/path/to/config"
//	Juliagate.kv["debug_mode"]   # true
//
// # Platform Support
//
// Juliagate supports:
//   - Linux (amd64, arm64)
//   - macOS (amd64, arm64/Apple Silicon)
//   - Windows (amd64)
package juliagate
