// Songrules - Association-Rule Song Recommendation Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/songrules

/*
Package supervisor provides process supervision for songrules using suture v4.

# Overview

The tree has two layers:

	RootSupervisor ("songrules")
	├── RulesSupervisor ("rules-layer")
	│   └── RuleServerService (owns the file watcher actor)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The two layers fail independently:
  - An HTTP listener failure is restarted by the api layer. The adopted rule
    snapshot lives in the rule server and is untouched.
  - The rule server is not restartable. When it fails, or its loop ends while
    the tree is still running, RuleServerService returns
    suture.ErrTerminateSupervisorTree and the whole process shuts down.

The file watcher is not a suture service. It is a child actor of the rule
server and is cancelled with it.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddRulesService(services.NewRuleServerService(ruleServer, logger))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second, logger))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Configuration

TreeConfig fields left at zero take suture's defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Debugging Shutdown Issues

Services that did not stop within ShutdownTimeout are listed by
UnstoppedServiceReport. The serve command logs them on exit.
*/
package supervisor
