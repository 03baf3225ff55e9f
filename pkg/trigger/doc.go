// Package trigger provides an embeddable pipeline trigger that can be mounted into other Go applications.
//
// # Overview
//
// A trigger accepts a submission request (configuration values plus pipeline
// parameters), resolves the compiled template in the Kubeflow pipelines registry,
// submits a pipeline job to Vertex AI Pipelines and polls the job until it is
// RUNNING or FAILED, answering with a fixed-shape response.
//
// # Basic Usage
//
//	cfg := &trigger.Config{
//		Server: trigger.ServerConfig{
//			Port:           8080,
//			ReadTimeout:    30 * time.Second,
//			WriteTimeout:   180 * time.Second,
//			RequestTimeout: 150 * time.Second,
//		},
//		Provider: trigger.ProviderConfig{
//			Kind:   "vertex",
//			Vertex: &trigger.VertexConfig{},
//		},
//		Polling: trigger.PollingConfig{
//			MaxAttempts: 6,
//			Interval:    20 * time.Second,
//		},
//		Logging: trigger.LoggingConfig{
//			Level:  "info",
//			Format: "json",
//		},
//	}
//
//	tr, err := trigger.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := tr.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Using with Existing HTTP Server
//
//	http.Handle("/pipelines/", http.StripPrefix("/pipelines", tr.Handler()))
//
// # Environment-based Configuration
//
//	tr, err := trigger.NewFromEnv("configs/config.yaml")
//
// # Direct Service Access
//
//	sub, err := tr.Service().SubmitPipeline(ctx, "beans", nil, map[string]interface{}{
//		"auc_threshold": 0.9,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println(sub.Response.PipelineStatus)
package trigger
