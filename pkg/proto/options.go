package proto

import (
	"autovader.dev/cmd/pkg/rule"
	"autovader.dev/cmd/pkg/scan"
)

func WithPlugins(plugins ...Interface) func(*P) {
	return func(p *P) {
		for _, plugin := range plugins {
			p.m[plugin.Name()] = plugin
		}
	}
}

func WithEngine(e *rule.Engine) func(*P) {
	return func(p *P) {
		p.e = e
	}
}

func WithTOptions(opts ...rule.TOption) func(*P) {
	return func(p *P) {
		p.e.Options = append(p.e.Options, opts...)
	}
}

func WithCoordinator(c *scan.Coordinator) func(*P) {
	return func(p *P) {
		p.c = c
	}
}
