package main

// Blank imports activate the self-registering notifier and agent transport
// adapters.

import (
	_ "github.com/Strob0t/conductor/internal/adapter/discord"
	_ "github.com/Strob0t/conductor/internal/adapter/email"
	_ "github.com/Strob0t/conductor/internal/adapter/httpagent"
	_ "github.com/Strob0t/conductor/internal/adapter/mcp"
	_ "github.com/Strob0t/conductor/internal/adapter/slack"
	_ "github.com/Strob0t/conductor/internal/adapter/sms"
	_ "github.com/Strob0t/conductor/internal/adapter/teams"
)
