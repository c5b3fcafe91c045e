// A Cobra-based CLI over the rdap client package.
//
// Subcommands
//   domain, ip, asn, ns, entity, lookup   – fetch a single object
//   tree                                   – recursively flush the related graph reachable from a seed
//   cache-stats                            – report in-process response cache hit/miss/eviction counters
//
// Flags
//   --json (default true)     – JSON output for single objects; for tree, outputs a graph {nodes,edges}
//   --max-depth               – for `tree` recursion depth (default 5)
//   --follow-links            – for `tree`, chase rdap Links[] (best-effort)
//   --tld                     – hint for entity/lookup resolution (nameservers resolve via their own TLD)
//   --raw                     – include the server's raw JSON body in output
//   --no-redact               – disable PII redaction for this invocation
//   --config                  – path to a TOML config file (see rdap.LoadConfigFile)
//   --cache-size              – override the response cache capacity for this run
//
// Env options for client:
//   RDAPCTL_UA, RDAPCTL_TIMEOUT, RDAPCTL_BOOTSTRAP_URL
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	rc "github.com/datum-labs/rdap"
)

var (
	flagJSON        = true
	flagTLD         string
	flagMaxDepth    int
	flagFollowLinks bool
	flagRaw         bool
	flagNoRedact    bool
	flagConfig      string
	flagCacheSize   int
)

func main() {
	root := &cobra.Command{
		Use:   "rdapctl",
		Short: "RDAP CLI",
	}

	root.PersistentFlags().BoolVar(&flagJSON, "json", true, "emit JSON; set --json=false for text output")
	root.PersistentFlags().StringVar(&flagTLD, "tld", "", "TLD hint for entity and auto-detected lookups (e.g., 'com')")
	root.PersistentFlags().BoolVar(&flagRaw, "raw", false, "include the server's raw JSON body")
	root.PersistentFlags().BoolVar(&flagNoRedact, "no-redact", false, "disable PII redaction for this invocation")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a TOML config file")
	root.PersistentFlags().IntVar(&flagCacheSize, "cache-size", 0, "override the in-process response cache capacity (0 = use config default)")

	root.AddCommand(cmdDomain(), cmdIP(), cmdASN(), cmdNS(), cmdEntity(), cmdLookup(), cmdTree(), cmdCacheStats())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

// newClient builds the rdap.Config from --config and the environment, then
// constructs a Client with any CLI-level overrides layered on top.
func newClient() *rc.Client {
	cfg := rc.DefaultConfig()
	if flagConfig != "" {
		loaded, err := rc.LoadConfigFile(flagConfig)
		if err != nil {
			log.Fatalf("loading config %s: %v", flagConfig, err)
		}
		cfg = loaded
	}

	var opts []rc.Option
	if ua := os.Getenv("RDAPCTL_UA"); ua != "" {
		opts = append(opts, rc.WithUserAgent(ua))
	}
	if to := os.Getenv("RDAPCTL_TIMEOUT"); to != "" {
		if d, err := time.ParseDuration(to); err == nil {
			opts = append(opts, rc.WithRequestTimeout(d))
		}
	}
	if u := os.Getenv("RDAPCTL_BOOTSTRAP_URL"); u != "" {
		opts = append(opts, rc.WithBootstrapBase(u))
	}
	if flagCacheSize > 0 {
		opts = append(opts, rc.WithCacheMaxSize(flagCacheSize))
	}
	return rc.New(cfg, opts...)
}

func queryOptions() rc.QueryOptions {
	opts := rc.QueryOptions{IncludeRaw: flagRaw}
	if flagNoRedact {
		off := false
		opts.RedactPII = &off
	}
	return opts
}

func cmdDomain() *cobra.Command {
	return &cobra.Command{
		Use:   "domain <fqdn>",
		Short: "Fetch domain RDAP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			resp, err := c.Query(context.Background(), mustDomainTarget(args[0]), queryOptions())
			if err != nil {
				return err
			}
			return render(resp)
		},
	}
}

func cmdIP() *cobra.Command {
	return &cobra.Command{
		Use:   "ip <ipv4|ipv6>",
		Short: "Fetch IP network RDAP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			t, err := rc.NewIPTarget(args[0])
			if err != nil {
				return err
			}
			resp, err := c.Query(context.Background(), t, queryOptions())
			if err != nil {
				return err
			}
			return render(resp)
		},
	}
}

func cmdASN() *cobra.Command {
	return &cobra.Command{
		Use:   "asn <AS12345|12345>",
		Short: "Fetch autnum RDAP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			t, err := rc.NewASNTarget(args[0])
			if err != nil {
				return err
			}
			resp, err := c.Query(context.Background(), t, queryOptions())
			if err != nil {
				return err
			}
			return render(resp)
		},
	}
}

func cmdNS() *cobra.Command {
	return &cobra.Command{
		Use:   "ns <hostname>",
		Short: "Fetch nameserver RDAP",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			resp, err := c.NameserverLookup(context.Background(), args[0], queryOptions())
			if err != nil {
				return err
			}
			return render(resp)
		},
	}
}

func cmdEntity() *cobra.Command {
	return &cobra.Command{
		Use:   "entity <handle>",
		Short: "Fetch entity RDAP (use --tld as a hint)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			resp, err := c.EntityLookup(context.Background(), args[0], flagTLD, queryOptions())
			if err != nil {
				return err
			}
			return render(resp)
		},
	}
}

func cmdLookup() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <query>",
		Short: "Auto-detect and fetch RDAP (ASN/IP/Domain/NS/Entity)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			resp, err := c.LookupWithOptions(context.Background(), args[0], flagTLD, queryOptions())
			if err != nil {
				return err
			}
			return render(resp)
		},
	}
}

func cmdCacheStats() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-stats",
		Short: "Report response cache hit/miss/eviction counters for a single run",
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			return printJSON(c.CacheStats())
		},
	}
}

func mustDomainTarget(s string) rc.Target {
	t, err := rc.NewDomainTarget(s)
	if err != nil {
		log.Fatal(err)
	}
	return t
}

// ---- Tree (flush entire graph reachable from a seed) -----------------------

func cmdTree() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree <seed>",
		Short: "Flush the RDAP graph reachable from a seed (domain/ip/asn/ns/entity)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			ctx := context.Background()

			seed := args[0]
			resp, err := c.LookupWithOptions(ctx, seed, flagTLD, queryOptions())
			if err != nil {
				return err
			}

			seen := newSeenSet()
			graph := &Graph{Nodes: map[string]GraphNode{}, Edges: []GraphEdge{}}
			walkResponse(ctx, c, resp, 0, flagMaxDepth, flagFollowLinks, seen, graph)

			if flagJSON {
				return printJSON(graph)
			}
			printHeader("tree", seed, fmt.Sprintf("(max-depth=%d follow-links=%v) ", flagMaxDepth, flagFollowLinks))
			printGraphText(graph)
			return nil
		},
	}
	cmd.Flags().IntVar(&flagMaxDepth, "max-depth", 5, "maximum recursion depth when walking the graph")
	cmd.Flags().BoolVar(&flagFollowLinks, "follow-links", false, "follow RDAP links[] to fetch additional objects (best-effort)")
	return cmd
}

type Graph struct {
	Nodes map[string]GraphNode `json:"nodes"`
	Edges []GraphEdge          `json:"edges"`
}

type GraphNode struct {
	ID   string      `json:"id"`
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Rel  string `json:"rel"`
}

func render(resp rc.CanonicalResponse) error {
	if flagJSON {
		return printJSON(resp)
	}
	printResponse(resp)
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printHeader(kind, handle, extra string) {
	fmt.Printf("\n=== %s: %s %s===\n", strings.ToUpper(kind), handle, extra)
}

func printResponse(r rc.CanonicalResponse) {
	printHeader(string(r.ObjectClass), displayName(r), "")
	fmt.Printf("handle: %s served_from_cache: %v discovered_via: %s\n", r.Handle, r.ServedFromCache, r.DiscoveredVia)
	if len(r.Status) > 0 {
		fmt.Printf("status: %v\n", r.Status)
	}
	if len(r.Nameservers) > 0 {
		fmt.Println("nameservers:")
		for _, ns := range r.Nameservers {
			fmt.Printf("  - %s\n", ns)
		}
	}
	if len(r.Entities) > 0 {
		fmt.Println("entities:")
		for _, e := range r.Entities {
			fmt.Printf("  - %s (%v)\n", e.Handle, e.Roles)
		}
	}
	if len(r.Events) > 0 {
		fmt.Println("events:")
		for _, ev := range r.Events {
			fmt.Printf("  - %s: %s\n", ev.Action, ev.Date.Format(time.RFC3339))
		}
	}
}

func displayName(r rc.CanonicalResponse) string {
	switch {
	case r.LDHName != "":
		return r.LDHName
	case r.Handle != "":
		return r.Handle
	case r.StartAddr != "":
		return r.StartAddr + "-" + r.EndAddr
	default:
		return "(unknown)"
	}
}

// ---- Full graph walk (tree) -------------------------------------------------

type seenSet struct{ ids map[string]struct{} }

func newSeenSet() *seenSet { return &seenSet{ids: map[string]struct{}{}} }

func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func makeNodeID(kind, key string) string { return kind + ":" + strings.ToLower(key) }

func walkResponse(ctx context.Context, c *rc.Client, r rc.CanonicalResponse, depth, maxDepth int, followLinks bool, seen *seenSet, g *Graph) {
	if depth > maxDepth {
		return
	}
	id := makeNodeID(string(r.ObjectClass), displayName(r))
	if !seen.add(id) {
		return
	}
	addNode(g, id, string(r.ObjectClass), r)

	for _, host := range r.Nameservers {
		ns, err := c.NameserverLookup(ctx, host, queryOptions())
		if err != nil {
			continue
		}
		to := makeNodeID(string(rc.ObjectClassNameserver), host)
		addEdge(g, id, to, "nameserver")
		walkResponse(ctx, c, ns, depth+1, maxDepth, followLinks, seen, g)
	}
	walkEntities(ctx, c, id, r.Entities, depth, maxDepth, seen, g)
	if followLinks {
		walkLinks(ctx, c, id, r.Links, depth, maxDepth, seen, g)
	}
}

func walkEntities(ctx context.Context, c *rc.Client, fromID string, entities []rc.CanonicalEntity, depth, maxDepth int, seen *seenSet, g *Graph) {
	for _, e := range entities {
		entID := makeNodeID(string(rc.ObjectClassEntity), e.Handle)
		if !seen.add(entID) {
			continue
		}
		addNode(g, entID, string(rc.ObjectClassEntity), e)
		addEdge(g, fromID, entID, "entity")
		walkEntities(ctx, c, entID, e.Entities, depth+1, maxDepth, seen, g)
	}
}

// walkLinks follows RDAP link relations that look like domain/entity/ns/autnum/ip
// paths. Best-effort: malformed or unrecognized links are ignored quietly.
func walkLinks(ctx context.Context, c *rc.Client, fromID string, links []string, depth, maxDepth int, seen *seenSet, g *Graph) {
	for _, href := range links {
		u, err := url.Parse(href)
		if err != nil || u.Path == "" {
			continue
		}
		path := strings.ToLower(u.Path)
		switch {
		case strings.Contains(path, "/domain/"):
			fetchAndWalk(ctx, c, fromID, "domain", tail(path), depth, maxDepth, seen, g, func(v string) (rc.CanonicalResponse, error) {
				return c.Query(ctx, mustDomainTarget(v), queryOptions())
			})
		case strings.Contains(path, "/nameserver/"):
			fetchAndWalk(ctx, c, fromID, "nameserver", tail(path), depth, maxDepth, seen, g, func(v string) (rc.CanonicalResponse, error) {
				return c.NameserverLookup(ctx, v, queryOptions())
			})
		case strings.Contains(path, "/entity/"):
			fetchAndWalk(ctx, c, fromID, "entity", tail(path), depth, maxDepth, seen, g, func(v string) (rc.CanonicalResponse, error) {
				return c.EntityLookup(ctx, v, flagTLD, queryOptions())
			})
		case strings.Contains(path, "/autnum/"):
			fetchAndWalk(ctx, c, fromID, "autnum", tail(path), depth, maxDepth, seen, g, func(v string) (rc.CanonicalResponse, error) {
				return c.Autnum(ctx, v)
			})
		case strings.Contains(path, "/ip/"):
			fetchAndWalk(ctx, c, fromID, "ip network", tail(path), depth, maxDepth, seen, g, func(v string) (rc.CanonicalResponse, error) {
				return c.IP(ctx, v)
			})
		}
	}
}

func fetchAndWalk(ctx context.Context, c *rc.Client, fromID, kind, value string, depth, maxDepth int, seen *seenSet, g *Graph, fetch func(string) (rc.CanonicalResponse, error)) {
	if value == "" {
		return
	}
	resp, err := fetch(value)
	if err != nil {
		return
	}
	to := makeNodeID(kind, displayName(resp))
	addEdge(g, fromID, to, "link:"+kind)
	walkResponse(ctx, c, resp, depth+1, maxDepth, true, seen, g)
}

var slashTail = regexp.MustCompile(`/([^/]+)$`)

func tail(p string) string {
	m := slashTail.FindStringSubmatch(p)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}

func addNode(g *Graph, id, kind string, data interface{}) {
	if _, ok := g.Nodes[id]; ok {
		return
	}
	g.Nodes[id] = GraphNode{ID: id, Kind: kind, Data: data}
}

func addEdge(g *Graph, from, to, rel string) {
	g.Edges = append(g.Edges, GraphEdge{From: from, To: to, Rel: rel})
}

func printGraphText(g *Graph) {
	kinds := map[string][]GraphNode{}
	for _, n := range g.Nodes {
		kinds[n.Kind] = append(kinds[n.Kind], n)
	}

	order := []string{"domain", "nameserver", "entity", "ip network", "autnum"}
	for _, k := range order {
		nodes := kinds[k]
		if len(nodes) == 0 {
			continue
		}
		fmt.Printf("\n[%s]\n", strings.ToUpper(k))
		for _, n := range nodes {
			fmt.Printf("- %s\n", n.ID)
			for _, e := range g.Edges {
				if e.From == n.ID {
					fmt.Printf("    -> %s (%s)\n", e.To, e.Rel)
				}
			}
		}
	}
}
