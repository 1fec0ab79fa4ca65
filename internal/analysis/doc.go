// Package analysis implements the language-model collaborators the phase
// orchestrator consumes: narrative analysis per phase, phase scoring,
// competitor recommendations and chat replies.
//
// The contracts (Analyzer, Scorer, Advisor and recommend.Source) are small
// interfaces so the workflow can be driven by stubs in tests. LLM is the
// production implementation on top of services/llm; all of its failures are
// tagged services.ErrCollaborator.
package analysis
