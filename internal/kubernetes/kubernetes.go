package kubernetes

import (
	"fmt"
	"os"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/catalyst-dev/liveops/internal/config"
)

// Kubernetes bundles the cluster clients shared by every repository in
// this package: the typed clientset for pod subresources (logs, exec),
// the dynamic client for arbitrary-resource watches, and the discovery
// client for server version probes.
type Kubernetes struct {
	config    *rest.Config
	clientset k8s.Interface
	dynamic   dynamic.Interface
	discovery discovery.DiscoveryInterface
}

func New(config *rest.Config) (*Kubernetes, error) {
	clientset, err := k8s.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	return &Kubernetes{
		config:    config,
		clientset: clientset,
		dynamic:   dyn,
		discovery: disc,
	}, nil
}

// ProvideRestConfig resolves cluster credentials:
// - an explicitly configured kubeconfig path wins
// - otherwise, when running inside a cluster, the service account
// - for local development, fall back to KUBECONFIG or the default path
func ProvideRestConfig(conf *config.Config) (*rest.Config, error) {
	if path := conf.Kubeconfig(); path != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("failed to build kube config from %s: %w", path, err)
		}
		return cfg, nil
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kube config: %w", err)
	}
	return cfg, nil
}
