// Package proxy prepares the traefik TLS assets for proxied installs.
//
// EnsureAssets writes these files under appdata/traefik:
//
//	certs/local.crt     self-signed certificate
//	certs/local.key     RSA private key
//	certs/metadata.json hostname set the certificate covers
//	tls.yml             traefik dynamic-config TLS document
//
// The certificate's SAN list is derived from every service's proxy_url;
// metadata.json records that set so an unchanged config reuses the
// existing certificate instead of rotating it on every apply. Changing
// any proxy_url regenerates the certificate with the new hostname set.
package proxy
