// Package sitewise is a conversational answering service for commercial
// location analysis.
//
// A question travels through a fixed pipeline: the query is expanded with
// recent user turns, the local knowledge base is searched, a router asks
// the language model whether external tools (web search and extraction
// served over MCP) are needed, and an answer is synthesized with a
// strategy chosen from the evidence at hand.
//
// # Quick Start
//
// Index some documents and start the server:
//
//	sitewise ingest ./docs
//	sitewise serve --config sitewise.yaml
//
// Ask from the terminal:
//
//	sitewise ask "강남역 상권의 2025년 트렌드는?" --stream
//
// # Configuration
//
//	llm:
//	  model: gpt-4o-mini
//	  api_key: ${OPENAI_API_KEY}
//	vector:
//	  type: chromem
//	tools:
//	  registry_path: mcp_config.json
//
// The tool registry follows the common MCP layout:
//
//	{
//	  "mcpServers": {
//	    "tavily": {"url": "https://mcp.tavily.com/mcp/?tavilyApiKey=${TAVILY_API_KEY}"}
//	  }
//	}
//
// # Packages
//
//   - pkg/chain: query expansion, tool routing, strategy selection, synthesis
//   - pkg/tool, pkg/tool/catalog, pkg/tool/mcptoolset: tool discovery and dispatch
//   - pkg/rag, pkg/vector, pkg/embedder: retrieval and ingestion
//   - pkg/model: language model clients
//   - pkg/server: HTTP and SSE surface
package sitewise
