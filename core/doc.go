// Package core defines the shared data model for the Zotero chat pipeline:
// grounded sources, conversation turns and per-query attachments. Higher
// layers (transport, orchestrator, llm) depend on this package so they remain
// decoupled from each other.
package core
