package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/provider"
)

func init() {
	rootCmd.AddCommand(collectionsCmd)
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List provider collections as a tree",
	Long: `List the collections of every provider that has any, as a forest.

Collections whose parent was never listed hang under a placeholder
node. When the document restricts the personal library to named
collections, only those and their descendants are shown.

Example:
  bipcite --doc paper.md collections --human`,
	Args: cobra.NoArgs,
	RunE: runCollections,
}

// CollectionNode is one node of the JSON collection tree.
type CollectionNode struct {
	Key         string           `json:"key"`
	Name        string           `json:"name,omitempty"`
	Placeholder bool             `json:"placeholder,omitempty"`
	Children    []CollectionNode `json:"children,omitempty"`
}

// CollectionsResponse is the collections output for one provider.
type CollectionsResponse struct {
	Provider    string           `json:"provider"`
	Collections []CollectionNode `json:"collections"`
}

func runCollections(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	forests := s.manager.Collections(s.doc)

	if humanOutput {
		if len(forests) == 0 {
			outputHuman("No collections.\n")
			return nil
		}
		for _, pc := range forests {
			fmt.Printf("%s\n", pc.Provider)
			provider.Walk(pc.Forest, func(n *provider.CollectionNode, depth int) {
				name := "(unknown parent " + n.Key + ")"
				if !n.Placeholder() {
					name = n.Collection.Name
				}
				fmt.Printf("%s%s\n", strings.Repeat("  ", depth+1), name)
			})
		}
		return nil
	}

	out := make([]CollectionsResponse, 0, len(forests))
	for _, pc := range forests {
		out = append(out, CollectionsResponse{Provider: pc.Provider, Collections: toCollectionNodes(pc.Forest)})
	}
	return outputJSON(out)
}

func toCollectionNodes(forest []*provider.CollectionNode) []CollectionNode {
	nodes := make([]CollectionNode, 0, len(forest))
	for _, n := range forest {
		node := CollectionNode{Key: n.Key, Placeholder: n.Placeholder(), Children: toCollectionNodes(n.Children)}
		if !n.Placeholder() {
			node.Name = n.Collection.Name
		}
		nodes = append(nodes, node)
	}
	return nodes
}
