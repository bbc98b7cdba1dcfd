// Package clientcli provides a client library for burndrop servers.
//
// It uploads files as shares, fetches share metadata, downloads shares
// and reads the aggregate statistics. Profiles stored in a YAML file keep
// the endpoints of several servers.
//
// # Basic Usage
//
// Create a client and share a file:
//
//	client, err := clientcli.New(&clientcli.Config{Endpoint: "http://localhost:5708"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	share, err := client.Upload(ctx, clientcli.UploadOptions{
//		LocalPath:    "./report.pdf",
//		TTL:          2 * time.Hour,
//		MaxDownloads: 1,
//	})
//	fmt.Println(share.URL)
//
// Download it, asking for a password only when the server wants one:
//
//	result, _, err := client.Download(ctx, clientcli.DownloadOptions{ID: id})
//	if errors.Is(err, clientcli.ErrPasswordRequired) {
//		// prompt and retry with DownloadOptions.Password
//	}
//
// # Profile Configuration
//
//	configFile, err := clientcli.LoadConfigFile(clientcli.DefaultConfigPath())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	profile, err := configFile.GetProfile("production")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := clientcli.New(clientcli.ConfigFromProfile(profile))
//
// # Output Formatting
//
//	formatter := clientcli.NewFormatter(clientcli.OutputJSON, quiet)
//	formatter.FormatInfo(os.Stdout, info)
package clientcli
