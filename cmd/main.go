/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"os"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/stellar/stellar-operator/cmd/controller"
)

var (
	setupLog = ctrl.Log.WithName("setup")
)

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("missing command (valid commands: controller)")
	}

	// Shift args so flag parsing works inside sub-commands (e.g., --leader-elect)
	switch command := args[0]; command {
	case "controller":
		return controller.Run(args[1:])
	default:
		return fmt.Errorf("unknown command %q (valid commands: controller)", command)
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		setupLog.Error(err, "command failed")
		os.Exit(1)
	}
}
