// Copyright © 2018 Enrico Stahn <enrico.stahn@gmail.com>
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/perfwatcher/pw-queryd/jsonrpc"
)

// Configuration variables for the "query" command.
var (
	queryServerURL string
	queryMethod    string
	queryParamsRaw string
	queryOutput    string
)

// queryCmd is a one-shot JSON-RPC client: POST a single method call
// against a running pw-queryd server (or any compatible endpoint) and
// print the result, mirroring the teacher's "get" subcommand (fetch
// once, print, exit) without needing php-fpm_exporter's scrape target.
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Send a single JSON-RPC call to a pw-queryd server and print the result",
	Long: `"query" issues one JSON-RPC 2.0 call against --server and prints the
response. Examples:

* pw-queryd query --method pw_get_dir_hosts
* pw-queryd query --method pw_get_status --params '{"timeout":60,"server":["web1"]}'
`,
	RunE: runQuery,
}

func init() {
	RootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVar(&queryServerURL, "server", "http://127.0.0.1:8080/", "Base URL of the pw-queryd JSON-RPC endpoint.")
	queryCmd.Flags().StringVar(&queryMethod, "method", "pw_get_dir_hosts", "RPC method to call.")
	queryCmd.Flags().StringVar(&queryParamsRaw, "params", "", "JSON params object/array for the method, if any.")
	queryCmd.Flags().StringVar(&queryOutput, "out", "text", "Output format. One of: text, json, spew")

	envs := map[string]string{
		"PWQUERYD_QUERY_SERVER": "server",
		"PWQUERYD_QUERY_METHOD": "method",
	}
	mapEnvVars(envs, queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	id := int64(1)
	req := jsonrpc.Request{JSONRPC: "2.0", ID: &id, Method: queryMethod}
	if queryParamsRaw != "" {
		req.Params = json.RawMessage(queryParamsRaw)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	httpResp, err := client.Post(queryServerURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("querying %s: %w", queryServerURL, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned HTTP %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp jsonrpc.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	switch queryOutput {
	case "json":
		fmt.Println(string(respBody))
	case "spew":
		spew.Dump(resp)
	case "text":
		printQueryResultText(resp)
	default:
		return fmt.Errorf("output format not valid: %q", queryOutput)
	}
	return nil
}

func printQueryResultText(resp jsonrpc.Response) {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true

	if resp.Error != nil {
		table.AddRow("Error code:", resp.Error.Code)
		table.AddRow("Error message:", resp.Error.Message)
	} else {
		table.AddRow("Method:", queryMethod)
		table.AddRow("Result:", fmt.Sprintf("%v", resp.Result))
	}
	fmt.Println(table)
}
